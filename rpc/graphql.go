package rpc

import (
	"net/http"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
)

const schemaSource = `
	schema {
		query: Query
	}

	type Query {
		status: Status!
	}

	type Status {
		height: Float!
		round: Float!
		step: String!
		lockedRound: Float
		validRound: Float
	}
`

type statusResolver struct {
	height, round           float64
	step                    string
	lockedRound, validRound *float64
}

func (r *statusResolver) Height() float64        { return r.height }
func (r *statusResolver) Round() float64         { return r.round }
func (r *statusResolver) Step() string           { return r.step }
func (r *statusResolver) LockedRound() *float64  { return r.lockedRound }
func (r *statusResolver) ValidRound() *float64   { return r.validRound }

type queryResolver[B any] struct {
	status StatusProvider[B]
}

func (q *queryResolver[B]) Status() *statusResolver {
	s := toStatusJSON(q.status.Status())
	r := &statusResolver{height: float64(s.Height), round: float64(s.Round), step: s.Step}
	if s.LockedRound != nil {
		v := float64(*s.LockedRound)
		r.lockedRound = &v
	}
	if s.ValidRound != nil {
		v := float64(*s.ValidRound)
		r.validRound = &v
	}
	return r
}

// NewGraphQLHandler builds an http.Handler serving a single read-only
// `status` query over status, matching the same snapshot /status
// exposes as plain JSON.
func NewGraphQLHandler[B any](status StatusProvider[B]) (http.Handler, error) {
	schema, err := graphql.ParseSchema(schemaSource, &queryResolver[B]{status: status})
	if err != nil {
		return nil, err
	}
	return &relay.Handler{Schema: schema}, nil
}
