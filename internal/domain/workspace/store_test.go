package workspace

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/playground/internal/domain/starter"
	"github.com/GriffinCanCode/playground/internal/sandbox/host"
	"github.com/GriffinCanCode/playground/internal/sandbox/mode"
	"github.com/GriffinCanCode/playground/internal/storage"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Load(ctx context.Context, md mode.Mode) (string, bool, error) {
	args := m.Called(ctx, md)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockStore) Save(ctx context.Context, md mode.Mode, code string) error {
	return m.Called(ctx, md, code).Error(0)
}

func (m *mockStore) Delete(ctx context.Context, md mode.Mode) error {
	return m.Called(ctx, md).Error(0)
}

func (m *mockStore) List(ctx context.Context) ([]storage.Snippet, error) {
	args := m.Called(ctx)
	snippets, _ := args.Get(0).([]storage.Snippet)
	return snippets, args.Error(1)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

func withStore(t *testing.T, store storage.CodeStore) *Workspace {
	t.Helper()
	w := New(Deps{
		Documents: host.NewDocumentStore(),
		Store:     store,
		Logger:    zap.NewNop(),
	}, Config{InitialMode: mode.HeadlessJS}, nil)
	t.Cleanup(w.Close)
	return w
}

func TestOpenPrefersSavedCode(t *testing.T) {
	store := &mockStore{}
	store.On("Load", mock.Anything, mode.HeadlessJS).Return("console.log('saved')", true, nil).Once()

	w := withStore(t, store)
	require.NoError(t, w.Open(context.Background()))
	assert.Equal(t, "console.log('saved')", w.Snapshot().Code)
	store.AssertExpectations(t)
}

func TestLoadFailureFallsBackToStarter(t *testing.T) {
	store := &mockStore{}
	store.On("Load", mock.Anything, mode.HeadlessJS).Return("", false, errors.New("disk on fire")).Once()

	w := withStore(t, store)
	require.NoError(t, w.Open(context.Background()))
	assert.Equal(t, starter.Code(mode.HeadlessJS), w.Snapshot().Code)
}

func TestCodeChangedSavesUnderCurrentMode(t *testing.T) {
	store := &mockStore{}
	store.On("Load", mock.Anything, mode.HeadlessJS).Return("", false, nil)
	store.On("Save", mock.Anything, mode.HeadlessJS, "let x = 1").Return(nil).Once()
	store.On("Save", mock.Anything, mode.HeadlessJS, "let x = 2").Return(errors.New("quota")).Once()

	w := withStore(t, store)
	require.NoError(t, w.Open(context.Background()))
	require.NoError(t, w.CodeChanged("let x = 1"))

	err := w.CodeChanged("let x = 2")
	assert.ErrorContains(t, err, "quota")
	assert.Equal(t, "let x = 2", w.Snapshot().Code, "the editor text is kept even when saving fails")
	store.AssertExpectations(t)
}

func TestResetForgetsSavedCode(t *testing.T) {
	store := &mockStore{}
	store.On("Load", mock.Anything, mode.HeadlessJS).Return("console.log('mine')", true, nil)
	store.On("Delete", mock.Anything, mode.HeadlessJS).Return(storage.ErrSnippetNotFound).Once()

	w := withStore(t, store)
	require.NoError(t, w.Open(context.Background()))
	require.NoError(t, w.Reset())
	assert.Equal(t, starter.Code(mode.HeadlessJS), w.Snapshot().Code)
	store.AssertExpectations(t)
}
