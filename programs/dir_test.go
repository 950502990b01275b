package programs

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDir(t *testing.T) {
	d := NewDir(filepath.Join(t.TempDir(), "gcode"))
	assert.Nil(t, d.List())

	require.NoError(t, d.Write("b.gcode", []byte("G0 X1\r\n; note\n\nG1 X2\n")))
	require.NoError(t, d.Write("a.gcode", []byte("$H")))
	require.NoError(t, os.Mkdir(filepath.Join(d.Path(), "sub"), 0755))

	assert.Equal(t, []string{"a.gcode", "b.gcode"}, d.List())

	data, err := d.Read("a.gcode")
	require.NoError(t, err)
	assert.Equal(t, "$H", data)

	lines, err := d.Lines("b.gcode")
	require.NoError(t, err)
	assert.Equal(t, []string{"G0 X1", "; note", "", "G1 X2"}, lines)

	require.NoError(t, d.Remove("a.gcode"))
	assert.Equal(t, []string{"b.gcode"}, d.List())
}

func TestDir_Errors(t *testing.T) {
	d := NewDir(t.TempDir())

	_, err := d.Read("missing.gcode")
	assert.ErrorIs(t, err, ErrFile)
	assert.ErrorIs(t, err, os.ErrNotExist)

	for _, name := range []string{"", ".", "..", "../x", "a/b", `a\b`} {
		err = d.Write(name, nil)
		assert.ErrorIs(t, err, ErrFile, name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
	assert.ErrorIs(t, d.Remove("missing"), ErrFile)
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, SplitLines(""))
	assert.Nil(t, SplitLines("\n"))
	assert.Equal(t, []string{"a", "", "b"}, SplitLines("a\r\n\r\nb\r\n"))
}

func TestDir_ServeHTTP(t *testing.T) {
	d := NewDir(t.TempDir())
	h := http.StripPrefix("/programs", d)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do("PUT", "/programs/card.gcode", "G0 X1\n").Code)

	rec := do("GET", "/programs/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["card.gcode"]`, rec.Body.String())

	rec = do("GET", "/programs/card.gcode", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "G0 X1\n", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, do("GET", "/programs/nope", "").Code)
	assert.Equal(t, http.StatusBadRequest, do("PUT", "/programs/a/b", "x").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do("POST", "/programs/card.gcode", "").Code)
	assert.Equal(t, http.StatusNoContent, do("DELETE", "/programs/card.gcode", "").Code)
	assert.Equal(t, http.StatusNotFound, do("DELETE", "/programs/card.gcode", "").Code)
}
