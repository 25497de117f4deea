package graphql

import (
	"PollTally/control"
	"PollTally/db"
	"PollTally/model"
	"context"
	"encoding/json"
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSchema(t *testing.T) (graphql.Schema, *db.MemoryStorage) {
	t.Helper()
	storage := db.NewMemoryStorage()
	schema, err := NewGraphQLSchema(control.NewPollService(storage))
	require.NoError(t, err)
	return schema, storage
}

func do(t *testing.T, schema graphql.Schema, query string) *graphql.Result {
	t.Helper()
	return graphql.Do(graphql.Params{
		Schema:        schema,
		RequestString: query,
		Context:       context.Background(),
	})
}

// decode 把结果转成 JSON 再解到 out，避免断言 interface{} 的具体类型
func decode(t *testing.T, res *graphql.Result, out interface{}) {
	t.Helper()
	require.Empty(t, res.Errors)
	b, err := json.Marshal(res.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, out))
}

type votesResult struct {
	Votes    []model.OptionVotes `json:"votes"`
	HasVoted bool                `json:"hasVoted"`
	Options  []string            `json:"options"`
}

func TestQuery_DefaultTally(t *testing.T) {
	schema, _ := newTestSchema(t)

	var out votesResult
	decode(t, do(t, schema, `{ votes { option votes } hasVoted options }`), &out)

	assert.Equal(t, []model.OptionVotes{
		{Option: model.OptionAgenticAI, Votes: 0},
		{Option: model.OptionSimpleLLM, Votes: 0},
		{Option: model.OptionMCP, Votes: 0},
	}, out.Votes)
	assert.False(t, out.HasVoted)
	assert.Equal(t, model.Options, out.Options)
}

func TestMutation_VoteThenAlreadyVoted(t *testing.T) {
	schema, _ := newTestSchema(t)

	var out struct {
		Vote []model.OptionVotes `json:"vote"`
	}
	decode(t, do(t, schema, `mutation { vote(option: "MCP Model Context protocol") { option votes } }`), &out)
	assert.Equal(t, model.OptionVotes{Option: model.OptionMCP, Votes: 1}, out.Vote[2])

	var state votesResult
	decode(t, do(t, schema, `{ hasVoted }`), &state)
	assert.True(t, state.HasVoted)

	res := do(t, schema, `mutation { vote(option: "Agentic AI") { option votes } }`)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Message, ErrAlreadyVoted.Error())
}

func TestMutation_ResetAllowsAnotherVote(t *testing.T) {
	schema, _ := newTestSchema(t)

	require.Empty(t, do(t, schema, `mutation { vote(option: "Agentic AI") { votes } }`).Errors)

	var reset struct {
		ResetVote bool `json:"resetVote"`
	}
	decode(t, do(t, schema, `mutation { resetVote }`), &reset)
	assert.True(t, reset.ResetVote)

	var out struct {
		Vote []model.OptionVotes `json:"vote"`
	}
	decode(t, do(t, schema, `mutation { vote(option: "Agentic AI") { option votes } }`), &out)
	assert.Equal(t, model.OptionVotes{Option: model.OptionAgenticAI, Votes: 2}, out.Vote[0])
}

func TestMutation_UnknownOption(t *testing.T) {
	schema, storage := newTestSchema(t)

	var out struct {
		Vote []model.OptionVotes `json:"vote"`
	}
	decode(t, do(t, schema, `mutation { vote(option: "Not A Real Option") { option votes } }`), &out)
	for _, ov := range out.Vote {
		assert.Equal(t, 0, ov.Votes)
	}

	_, ok, err := storage.Get(context.Background(), model.VotesKey)
	require.NoError(t, err)
	assert.False(t, ok, "unknown option must not write the tally")

	var state votesResult
	decode(t, do(t, schema, `{ hasVoted }`), &state)
	assert.False(t, state.HasVoted)
}

func TestQuery_ExtraStoredOptionsSortedLast(t *testing.T) {
	schema, storage := newTestSchema(t)
	require.NoError(t, storage.Set(context.Background(), model.VotesKey,
		`{"Zeta":1,"Agentic AI":4,"Alpha":2}`))

	var out votesResult
	decode(t, do(t, schema, `{ votes { option votes } }`), &out)
	assert.Equal(t, []model.OptionVotes{
		{Option: model.OptionAgenticAI, Votes: 4},
		{Option: "Alpha", Votes: 2},
		{Option: "Zeta", Votes: 1},
	}, out.Votes)
}

func TestMutation_KnownOptionMissingFromStoredTally(t *testing.T) {
	schema, storage := newTestSchema(t)
	ctx := context.Background()
	require.NoError(t, storage.Set(ctx, model.VotesKey, `{"Agentic AI":1}`))

	var out struct {
		Vote []model.OptionVotes `json:"vote"`
	}
	decode(t, do(t, schema, `mutation { vote(option: "MCP Model Context protocol") { option votes } }`), &out)
	assert.Equal(t, []model.OptionVotes{{Option: model.OptionAgenticAI, Votes: 1}}, out.Vote)

	var state votesResult
	decode(t, do(t, schema, `{ hasVoted }`), &state)
	assert.False(t, state.HasVoted, "no vote was counted, so the flag stays unset")
}
