package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryDOM(t *testing.T) {
	snapshot := `<ul id="list"><li class="done">milk</li><li>eggs</li></ul><h1>Groceries</h1>`

	matches, err := QueryDOM(snapshot, "//li")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, `<li class="done">milk</li>`, matches[0].HTML)
	assert.Equal(t, "eggs", matches[1].Text)

	matches, err = QueryDOM(snapshot, `//li[@class="done"]`)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "milk", matches[0].Text)

	matches, err = QueryDOM(snapshot, "//table")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestQueryDOMErrors(t *testing.T) {
	_, err := QueryDOM("", "//p")
	assert.ErrorIs(t, err, ErrNoDOM)

	_, err = QueryDOM("<p>x</p>", "//p[")
	assert.Error(t, err)
}

func TestInspectWorkspace(t *testing.T) {
	f := open(t)
	f.run(t, `document.getElementById('root').innerHTML = '<p class="greeting">hello</p>';`)
	f.eventually(t, func(s Snapshot) bool { return s.DOM != "" }, "no snapshot")

	matches, err := f.w.Inspect(`//p[@class="greeting"]`)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "hello", matches[0].Text)
}
