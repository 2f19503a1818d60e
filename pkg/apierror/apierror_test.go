package apierror

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WrapsErrAndAssignsCode(t *testing.T) {
	base := errors.New("boom")
	err := New(KindTransientExternal, "vector store unreachable", base)

	assert.Equal(t, KindTransientExternal, err.Kind)
	assert.Equal(t, CodeTransientExternal, err.Code)
	assert.True(t, errors.Is(err, base))
	assert.Equal(t, 503, err.StatusCode())
}

func TestError_StringIncludesKindAndMessage(t *testing.T) {
	err := New(KindValidation, "missing field", nil)
	assert.Contains(t, err.Error(), "validation")
	assert.Contains(t, err.Error(), "missing field")
}

func TestToResponse_ProductionHidesInternalDetail(t *testing.T) {
	err := Internal("nil pointer at orchestrator.go:42", errors.New("panic recovered"))
	err.WithRequestID("req-1")
	err.Developer([]string{"check nil agent context"}, 0)

	resp := ToResponse(err, ModeProduction)
	assert.False(t, resp.Success)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, string(CodeInternalError), resp.Error.Code)
	assert.NotContains(t, resp.Error.Message, "nil pointer")
	assert.Empty(t, resp.Error.StackTrace)
	assert.Empty(t, resp.Error.Location)
	assert.NotEmpty(t, resp.Error.ReferenceID)
}

func TestToResponse_DevelopmentIncludesDeveloperDetail(t *testing.T) {
	err := Validation("field 'query' is required", nil)
	err.Developer([]string{"pass a non-empty query"}, 0)

	resp := ToResponse(err, ModeDevelopment)
	assert.Equal(t, "field 'query' is required", resp.Error.Message)
	assert.NotEmpty(t, resp.Error.Location)
	assert.NotEmpty(t, resp.Error.StackTrace)
	assert.Equal(t, []string{"pass a non-empty query"}, resp.Error.Suggestions)
}

func TestConstructors_AssignExpectedKind(t *testing.T) {
	cases := []struct {
		err  *Error
		kind Kind
	}{
		{Validation("x", nil), KindValidation},
		{Permission("x", nil), KindPermission},
		{Deadline("x", nil), KindDeadline},
		{TransientExternal("x", nil), KindTransientExternal},
		{DoomLoop("x", nil), KindDoomLoop},
		{InvalidDAG("x", nil), KindInvalidDAG},
		{Parse("x", nil), KindParse},
		{Internal("x", nil), KindInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, tc.err.Kind)
	}
}

func TestAppMode_SetAndString(t *testing.T) {
	prior := AppMode()
	defer SetAppMode(prior)

	SetAppMode(ModeProduction)
	require.Equal(t, ModeProduction, AppMode())
	assert.Equal(t, "product", AppMode().String())

	SetAppMode(ModeDevelopment)
	require.Equal(t, ModeDevelopment, AppMode())
	assert.Equal(t, "develop", AppMode().String())
}
