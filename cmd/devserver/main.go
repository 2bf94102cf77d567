// Command devserver is an in-memory Loteria server for local development.
// It speaks the same envelope protocol as production but keeps everything in
// process: no persistence, random arbitration, canned friends.
package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	pretty := flag.Bool("pretty", true, "pretty console logging")
	flag.Parse()

	if *pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	srv := newServer()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}).Handler(mux)

	log.Info().Str("addr", *addr).Msg("devserver listening")
	if err := http.ListenAndServe(*addr, handler); err != nil {
		log.Fatal().Err(err).Msg("devserver exited")
	}
}
