package graph

import (
	"context"
	"net/http"
	"strings"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"

	"github.com/lvdashuaibi/ballotbot/internal/ballot"
	"github.com/lvdashuaibi/ballotbot/internal/model"
)

// GraphQLServer exposes a read-only view of the current poll.
type GraphQLServer struct {
	schema     *graphql.Schema
	handler    *relay.Handler
	resolver   *Resolver
	playground string
}

const schemaString = `
type Poll {
  open: Boolean!
  author: String
}

type CandidateVotes {
  candidate: String!
  votes: Int!
}

type ItemTally {
  item: String!
  candidates: [CandidateVotes!]!
}

type Query {
  # Whether a poll is open and who opened it
  poll: Poll!

  # Votes per nomination in first-vote order
  tally: [ItemTally!]!
}

schema {
  query: Query
}
`

// BallotReader is the part of the engine the resolvers need.
type BallotReader interface {
	Snapshot(ctx context.Context) (ballot.Snapshot, error)
	Tally(ctx context.Context) (model.Tally, error)
}

func NewGraphQLServer(reader BallotReader, endpoint string) *GraphQLServer {
	resolver := NewResolver(reader)
	schema := graphql.MustParseSchema(schemaString, resolver)

	return &GraphQLServer{
		schema:     schema,
		handler:    &relay.Handler{Schema: schema},
		resolver:   resolver,
		playground: strings.ReplaceAll(playgroundHTML, "{{endpoint}}", endpoint),
	}
}

// Handler serves GraphQL queries over POST.
func (s *GraphQLServer) Handler() http.Handler {
	return s.handler
}

// Playground serves the interactive query page.
func (s *GraphQLServer) Playground() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(s.playground))
	})
}

type Resolver struct {
	reader BallotReader
}

func NewResolver(reader BallotReader) *Resolver {
	return &Resolver{reader: reader}
}

func (r *Resolver) Poll(ctx context.Context) (*PollResolver, error) {
	snap, err := r.reader.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &PollResolver{snap: snap}, nil
}

func (r *Resolver) Tally(ctx context.Context) ([]*ItemTallyResolver, error) {
	tally, err := r.reader.Tally(ctx)
	if err != nil {
		return nil, err
	}
	resolvers := make([]*ItemTallyResolver, len(tally))
	for i := range tally {
		resolvers[i] = &ItemTallyResolver{item: tally[i]}
	}
	return resolvers, nil
}

type PollResolver struct {
	snap ballot.Snapshot
}

func (r *PollResolver) Open() bool {
	return r.snap.Open
}

// Author is null when no poll is open.
func (r *PollResolver) Author() *string {
	if !r.snap.Open {
		return nil
	}
	author := r.snap.Author
	return &author
}

type ItemTallyResolver struct {
	item model.ItemTally
}

func (r *ItemTallyResolver) Item() string {
	return r.item.Item
}

func (r *ItemTallyResolver) Candidates() []*CandidateVotesResolver {
	out := make([]*CandidateVotesResolver, len(r.item.Candidates))
	for i, c := range r.item.Candidates {
		out[i] = &CandidateVotesResolver{count: c}
	}
	return out
}

type CandidateVotesResolver struct {
	count model.CandidateCount
}

func (r *CandidateVotesResolver) Candidate() string {
	return r.count.Candidate
}

func (r *CandidateVotesResolver) Votes() int32 {
	return int32(r.count.Votes)
}

// playgroundHTML is the GraphQL Playground page; {{endpoint}} is replaced
// with the API path.
const playgroundHTML = `
<!DOCTYPE html>
<html>
<head>
  <meta charset=utf-8/>
  <meta name="viewport" content="user-scalable=no, initial-scale=1.0, minimum-scale=1.0, maximum-scale=1.0, minimal-ui">
  <title>Ballot Bot GraphQL Playground</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/static/css/index.css" />
  <link rel="shortcut icon" href="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/favicon.png" />
  <script src="https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/static/js/middleware.js"></script>
</head>
<body>
  <div id="root">
    <style>
      body {
        background-color: rgb(23, 42, 58);
        font-family: Open Sans, sans-serif;
        height: 90vh;
      }
      #root {
        height: 100%;
        width: 100%;
        display: flex;
        align-items: center;
        justify-content: center;
      }
      .loading {
        font-size: 32px;
        font-weight: 200;
        color: rgba(255, 255, 255, .6);
        margin-left: 20px;
      }
      img {
        width: 78px;
        height: 78px;
      }
      .title {
        font-weight: 400;
      }
    </style>
    <img src='https://cdn.jsdelivr.net/npm/graphql-playground-react@1.7.22/build/logo.png' alt=''>
    <div class="loading"> 
      <span class="title">Ballot Bot GraphQL Playground</span>
    </div>
  </div>
  <script>window.addEventListener('load', function (event) {
      GraphQLPlayground.init(document.getElementById('root'), {
        endpoint: '{{endpoint}}'
      })
    })</script>
</body>
</html>
`
