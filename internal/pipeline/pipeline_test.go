package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredjeanlab/docq/internal/engine"
	"github.com/alfredjeanlab/docq/internal/model"
	"github.com/alfredjeanlab/docq/internal/query"
)

var alice = model.Principal{ID: "u1"}

func compile(t *testing.T, text string) *query.Compiled {
	t.Helper()
	out, err := query.NewCompiler("", query.Lenient, nil).CompileString(alice, text)
	require.NoError(t, err)
	return out
}

func intp(n int) *int { return &n }

func TestAssemblePlainCollection(t *testing.T) {
	a := NewAssembler(DefaultLedger())
	plan := a.Assemble("notes", alice, compile(t, `{
		"conditions":[{"field":"status","operator":"==","value":"open"}],
		"orderByField":"title","orderDirection":"asc",
		"limitCount":10,"offsetCount":20
	}`))

	assert.Equal(t, []Stage{
		{"$match": map[string]any{"status": "open"}},
		{"$sort": query.SortSpec{{Field: "title"}}},
		{"$skip": 20},
		{"$limit": 10},
	}, plan.Stages)
	assert.Equal(t, map[string]any{"status": "open"}, plan.CountFilter)
}

func TestAssembleOmitsZeroAndUnsetPagination(t *testing.T) {
	a := NewAssembler(Ledger{})
	for _, text := range []string{`{}`, `{"limitCount":0,"offsetCount":0}`} {
		plan := a.Assemble("notes", alice, compile(t, text))
		assert.Equal(t, []Stage{
			{"$match": map[string]any{}},
			{"$sort": query.SortSpec{{Field: "id", Desc: true}}},
		}, plan.Stages, text)
	}
}

func TestAssembleLedgerOrdering(t *testing.T) {
	a := NewAssembler(DefaultLedger())
	plan := a.Assemble("transactions", alice, compile(t, `{"conditions":[
		{"field":"accountId","operator":"==","value":"acc-1"},
		{"field":"amount","operator":">","value":"0"}
	]}`))

	require.Len(t, plan.Stages, 7)
	assert.Equal(t, Stage{"$match": map[string]any{"userId": "u1", "accountId": "acc-1"}}, plan.Stages[0])
	assert.Equal(t, []string{"$addFields", "$setWindowFields", "$addFields", "$unset", "$match", "$sort"},
		[]string{Name(plan.Stages[1]), Name(plan.Stages[2]), Name(plan.Stages[3]), Name(plan.Stages[4]), Name(plan.Stages[5]), Name(plan.Stages[6])})
	assert.Equal(t, Match(map[string]any{"accountId": "acc-1", "amount": map[string]any{"$gt": 0.0}}), plan.Stages[5])
	assert.Nil(t, plan.CountFilter)
	assert.Equal(t, append(plan.Stages[:6:6], Stage{"$count": CountField}), plan.CountStages)

	// Operator predicates on the account field are not hoisted.
	plan = a.Assemble("transactions", alice, compile(t, `{"conditions":[
		{"field":"accountId","operator":"in","value":["a","b"]}
	]}`))
	assert.Equal(t, Stage{"$match": map[string]any{"userId": "u1"}}, plan.Stages[0])
}

func TestRunningBalanceIsExactAndIgnoresLaterFilters(t *testing.T) {
	entries := []model.Document{
		{"id": "t3", "userId": "u1", "accountId": "acc", "amount": 5.00, "date": "2024-01-03"},
		{"id": "t1", "userId": "u1", "accountId": "acc", "amount": 10.10, "date": "2024-01-01"},
		{"id": "t2", "userId": "u1", "accountId": "acc", "amount": -0.05, "date": "2024-01-02"},
		{"id": "x1", "userId": "u2", "accountId": "acc", "amount": 99.0, "date": "2024-01-01"},
	}
	a := NewAssembler(DefaultLedger())

	plan := a.Assemble("transactions", alice, compile(t, `{"orderByField":"date","orderDirection":"asc"}`))
	out, err := engine.Run(entries, plan.Stages)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []any{10.10, 10.05, 15.05}, []any{out[0]["balance"], out[1]["balance"], out[2]["balance"]})
	assert.NotContains(t, out[0], "__amountCents")
	assert.NotContains(t, out[0], "__balanceCents")

	plan = a.Assemble("transactions", alice, compile(t, `{
		"conditions":[{"field":"amount","operator":">","value":0}],
		"orderByField":"date","orderDirection":"asc","startAfter":1
	}`))
	out, err = engine.Run(entries, plan.Stages)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "t3", out[0]["id"])
	assert.Equal(t, 15.05, out[0]["balance"])
}

func TestLedgerCountSeesComputedBalance(t *testing.T) {
	entries := []model.Document{
		{"id": "t1", "userId": "u1", "accountId": "acc", "amount": 10.10, "date": "2024-01-01"},
		{"id": "t2", "userId": "u1", "accountId": "acc", "amount": -0.05, "date": "2024-01-02"},
		{"id": "t3", "userId": "u1", "accountId": "acc", "amount": 5.00, "date": "2024-01-03"},
	}
	plan := NewAssembler(DefaultLedger()).Assemble("transactions", alice, compile(t, `{
		"conditions":[{"field":"balance","operator":">","value":"12"}],"limitCount":10
	}`))

	out, err := engine.Run(entries, plan.Stages)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "t3", out[0]["id"])

	counted, err := engine.Run(entries, plan.CountStages)
	require.NoError(t, err)
	require.Len(t, counted, 1)
	assert.Equal(t, 1.0, counted[0][CountField])
}

func TestRunningBalanceTiebreak(t *testing.T) {
	entries := []model.Document{
		{"id": "b", "userId": "u1", "accountId": "acc", "amount": 2.0, "date": "2024-01-01"},
		{"id": "a", "userId": "u1", "accountId": "acc", "amount": 1.0, "date": "2024-01-01"},
	}
	plan := NewAssembler(DefaultLedger()).Assemble("transactions", alice, compile(t, `{"orderByField":"id","orderDirection":"asc"}`))
	out, err := engine.Run(entries, plan.Stages)
	require.NoError(t, err)
	assert.Equal(t, 1.0, out[0]["balance"])
	assert.Equal(t, 3.0, out[1]["balance"])
}

func TestLedgerStagesEncodeSortInOrder(t *testing.T) {
	data, err := json.Marshal(DefaultLedger().BalanceStages()[1])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sortBy":{"date":1,"id":1}`)
}

func TestSubstitute(t *testing.T) {
	template := []Stage{
		{"$match": map[string]any{"userId": "{{userId}}", "qty": "{{qty}}"}},
	}
	out, err := Substitute(template, map[string]any{"userId": "u1", "qty": 3}, query.Lenient)
	require.NoError(t, err)
	assert.Equal(t, []Stage{{"$match": map[string]any{"userId": "u1", "qty": 3}}}, out)
	assert.Equal(t, "{{qty}}", template[0]["$match"].(map[string]any)["qty"])
}

func TestSubstituteNestedAndVerbatim(t *testing.T) {
	template := []Stage{
		{"$match": map[string]any{
			"$or": []any{
				map[string]any{"tags": map[string]any{"$in": "{{tags}}"}},
				map[string]any{"owner": "{{missing}}"},
			},
			"note": "prefix {{userId}}",
		}},
	}
	params := map[string]any{"tags": []any{"a", "b"}, "userId": "u1"}
	out, err := Substitute(template, params, query.Lenient)
	require.NoError(t, err)

	match := out[0]["$match"].(map[string]any)
	or := match["$or"].([]any)
	assert.Equal(t, []any{"a", "b"}, or[0].(map[string]any)["tags"].(map[string]any)["$in"])
	assert.Equal(t, "{{missing}}", or[1].(map[string]any)["owner"])
	assert.Equal(t, "prefix {{userId}}", match["note"])

	// The result does not alias caller params.
	or[0].(map[string]any)["tags"].(map[string]any)["$in"].([]any)[0] = "z"
	assert.Equal(t, "a", params["tags"].([]any)[0])

	_, err = Substitute(template, params, query.Strict)
	assert.ErrorIs(t, err, query.ErrMissingParam)
}

func TestPlaceholders(t *testing.T) {
	template := []Stage{
		{"$match": map[string]any{"a": "{{b}}", "c": []any{"{{a}}", "{{b}}", "{{ not }}"}}},
	}
	assert.Equal(t, []string{"a", "b"}, Placeholders(template))
}

func TestPaginate(t *testing.T) {
	stages := Paginate(nil, nil, intp(0), intp(5))
	assert.Equal(t, []Stage{{"$limit": 5}}, stages)
	assert.Equal(t, "", Name(Stage{"$a": 1, "$b": 2}))
}
