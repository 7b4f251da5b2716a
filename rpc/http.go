// Package rpc is a read-only introspection surface over a running
// core.Tendermint replica: an httprouter-backed JSON endpoint, a
// graph-gophers GraphQL schema and a gorilla/websocket commit stream.
// None of it can submit a proposal, vote, or otherwise influence
// consensus; spec.md keeps that out of scope for this layer.
package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/mileswatson/blockkey/core"
	"github.com/mileswatson/blockkey/hash"
)

// StatusProvider is satisfied by *core.Tendermint[B] for any B; rpc
// depends on this narrow interface rather than the concrete replica
// type so a single handler set can serve any block type.
type StatusProvider[B any] interface {
	Status() core.Status[B]
}

// StatusJSON is the wire shape returned by GET /status.
type StatusJSON struct {
	Height       uint64  `json:"height"`
	Round        uint64  `json:"round"`
	Step         string  `json:"step"`
	LockedRound  *uint64 `json:"lockedRound,omitempty"`
	ValidRound   *uint64 `json:"validRound,omitempty"`
}

func toStatusJSON[B any](s core.Status[B]) StatusJSON {
	out := StatusJSON{Height: s.Height, Round: s.Round, Step: s.Step.String()}
	if s.Locked != nil {
		r := s.Locked.Round
		out.LockedRound = &r
	}
	if s.Valid != nil {
		r := s.Valid.Round
		out.ValidRound = &r
	}
	return out
}

// Server is the HTTP half of the introspection surface: GET /status and
// GET /log/:height (forwarded to a MessageLog reader the caller
// supplies, since core.MessageLog isn't itself exported for direct
// wire serialization).
type Server[B hash.Hashable[B]] struct {
	handler http.Handler
}

// LogReader abstracts MessageLog.GetHeight for a specific B without
// exposing contract.Contract[...] types over the wire; the rpc layer
// only needs counts.
type LogReader func(height uint64) (proposals, prevotes, precommits int)

func NewServer[B hash.Hashable[B]](status StatusProvider[B], logReader LogReader) *Server[B] {
	router := httprouter.New()

	router.GET("/status", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(w, toStatusJSON(status.Status()))
	})

	router.GET("/log/:height", func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var height uint64
		if _, err := fmt.Sscanf(ps.ByName("height"), "%d", &height); err != nil {
			http.Error(w, "invalid height", http.StatusBadRequest)
			return
		}
		proposals, prevotes, precommits := logReader(height)
		writeJSON(w, map[string]int{
			"proposals":  proposals,
			"prevotes":   prevotes,
			"precommits": precommits,
		})
	})

	handler := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet},
	}).Handler(router)

	return &Server[B]{handler: handler}
}

func (s *Server[B]) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.handler)
}

func (s *Server[B]) Handler() http.Handler { return s.handler }

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
