package workspace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/playground/internal/domain/starter"
	"github.com/GriffinCanCode/playground/internal/sandbox/host"
	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
)

func scriptDeps() Deps {
	return Deps{Documents: host.NewDocumentStore(), Logger: zap.NewNop()}
}

func TestExecuteCollectsOutput(t *testing.T) {
	res, err := Execute(context.Background(), scriptDeps(), Config{}, Script{
		Mode:   mode.DOM,
		Code:   `console.log('one'); setTimeout(() => console.warn('two'), 10); document.getElementById('root').innerHTML = '<p>done</p>';`,
		Settle: 200 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.Equal(t, mode.DOM, res.Mode)
	require.Len(t, res.Logs, 2)
	assert.Equal(t, "one", res.Logs[0].Text)
	assert.Equal(t, LogWarn, res.Logs[1].Kind)
	assert.Contains(t, res.DOM, "<p>done</p>")
	assert.Empty(t, res.Exchanges)
}

func TestExecuteSendsRequestsInOrder(t *testing.T) {
	res, err := Execute(context.Background(), scriptDeps(), Config{RequestTimeout: 300 * time.Millisecond}, Script{
		Mode: mode.Express,
		Code: `
const express = require('express');
const app = express();
app.get('/', (req, res) => res.json({ ok: true }));
app.get('/hang', (req, res) => {});
app.listen(3000);
`,
		Requests: []starter.Request{
			{Method: "GET", Path: "/"},
			{Method: "GET", Path: "/nope"},
			{Method: "GET", Path: "/hang"},
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Server.Ready)
	require.Len(t, res.Exchanges, 3)

	assert.Equal(t, 200, res.Exchanges[0].Response.Status)
	assert.Equal(t, map[string]any{"ok": true}, res.Exchanges[0].Response.Data)
	assert.Equal(t, 404, res.Exchanges[1].Response.Status)
	assert.Nil(t, res.Exchanges[2].Response)
	assert.Equal(t, ErrRequestTimeout.Error(), res.Exchanges[2].Error)
}

func TestExecuteFaultedServer(t *testing.T) {
	res, err := Execute(context.Background(), scriptDeps(), Config{RequestTimeout: 300 * time.Millisecond}, Script{
		Mode:     mode.Express,
		Code:     `throw new Error('boot failed')`,
		Requests: []starter.Request{{Method: "GET", Path: "/"}},
	})
	require.NoError(t, err)
	assert.Contains(t, res.Server.LastError, "boot failed")
	require.Len(t, res.Exchanges, 1)
	assert.Equal(t, ErrServerNotReady.Error(), res.Exchanges[0].Error)
}

func TestExecuteUnknownMode(t *testing.T) {
	_, err := Execute(context.Background(), scriptDeps(), Config{}, Script{Mode: "cobol"})
	assert.ErrorIs(t, err, mode.ErrUnknownMode)
}
