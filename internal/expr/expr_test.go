package expr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleEquality(t *testing.T) {
	p, err := Parse(`"Jenis Kelamin" == "Laki-Laki"`)
	require.NoError(t, err)

	assert.True(t, p.Eval(map[string]string{"Jenis Kelamin": "Laki-Laki"}))
	assert.False(t, p.Eval(map[string]string{"Jenis Kelamin": "Perempuan"}))
}

func TestEvalNormalizesHyphensAndCase(t *testing.T) {
	p, err := Parse(`"Jenis Kelamin" == "laki-laki"`)
	require.NoError(t, err)

	// All spellings of the same value must match.
	for _, cell := range []string{"Laki-Laki", "Laki - Laki", "LAKI LAKI", "laki-laki"} {
		assert.True(t, p.Eval(map[string]string{"Jenis Kelamin": cell}), "cell %q", cell)
	}

	assert.False(t, p.Eval(map[string]string{"Jenis Kelamin": "Perempuan"}))
}

func TestContains(t *testing.T) {
	p, err := Parse(`"Pekerjaan" contains "tani"`)
	require.NoError(t, err)

	assert.True(t, p.Eval(map[string]string{"Pekerjaan": "Petani"}))
	assert.True(t, p.Eval(map[string]string{"Pekerjaan": "Buruh Tani"}))
	assert.False(t, p.Eval(map[string]string{"Pekerjaan": "Nelayan"}))
}

func TestAndOrPrecedence(t *testing.T) {
	// AND binds tighter than OR.
	p, err := Parse(`"Dusun" == "Krajan" OR "Dusun" == "Sumber" AND "RT" == "01"`)
	require.NoError(t, err)

	assert.True(t, p.Eval(map[string]string{"Dusun": "Krajan", "RT": "05"}))
	assert.True(t, p.Eval(map[string]string{"Dusun": "Sumber", "RT": "01"}))
	assert.False(t, p.Eval(map[string]string{"Dusun": "Sumber", "RT": "02"}))
}

func TestParenthesesOverridePrecedence(t *testing.T) {
	p, err := Parse(`("Dusun" == "Krajan" OR "Dusun" == "Sumber") AND "RT" == "01"`)
	require.NoError(t, err)

	assert.False(t, p.Eval(map[string]string{"Dusun": "Krajan", "RT": "05"}))
	assert.True(t, p.Eval(map[string]string{"Dusun": "Krajan", "RT": "01"}))
	assert.True(t, p.Eval(map[string]string{"Dusun": "Sumber", "RT": "01"}))
}

func TestNot(t *testing.T) {
	p, err := Parse(`NOT "Status" == "Meninggal"`)
	require.NoError(t, err)

	assert.True(t, p.Eval(map[string]string{"Status": "Hidup"}))
	assert.False(t, p.Eval(map[string]string{"Status": "Meninggal"}))
}

func TestNotEquals(t *testing.T) {
	p, err := Parse(`"Agama" != "Islam"`)
	require.NoError(t, err)

	assert.False(t, p.Eval(map[string]string{"Agama": "Islam"}))
	assert.True(t, p.Eval(map[string]string{"Agama": "Kristen"}))
}

func TestColumnLookupIsNormalized(t *testing.T) {
	p, err := Parse(`"jenis kelamin" == "perempuan"`)
	require.NoError(t, err)

	assert.True(t, p.Eval(map[string]string{"Jenis Kelamin": "Perempuan"}))
}

func TestMissingColumnDoesNotMatch(t *testing.T) {
	p, err := Parse(`"Umur" == "25"`)
	require.NoError(t, err)

	assert.False(t, p.Eval(map[string]string{"Nama": "Budi"}))
}

func TestBareWordsAllowed(t *testing.T) {
	p, err := Parse(`Umur == 25`)
	require.NoError(t, err)

	assert.True(t, p.Eval(map[string]string{"Umur": "25"}))
}

func TestValidateRejectsCodeFragments(t *testing.T) {
	inputs := []string{
		`"a" == "b"; drop`,
		`function() { return true }`,
		`(row) => row.age > 5`,
		`eval("1+1")`,
		`require('fs')`,
		`import os`,
		`os.system("rm")`,
		`process.exit(1)`,
	}

	for _, input := range inputs {
		_, err := Parse(input)
		require.Error(t, err, "input %q", input)

		var unsafeErr *UnsafeExpressionError
		assert.True(t, errors.As(err, &unsafeErr), "input %q should be rejected as unsafe, got %v", input, err)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	inputs := []string{
		``,
		`"a" ==`,
		`== "b"`,
		`"a" == "b" AND`,
		`("a" == "b"`,
		`"a" = "b"`,
		`"a" like "b"`,
		`"unterminated == "b"`,
	}

	for _, input := range inputs {
		_, err := Parse(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "laki laki", Normalize("Laki - Laki"))
	assert.Equal(t, "laki laki", Normalize("LAKI-LAKI"))
	assert.Equal(t, "laki laki", Normalize("  laki   laki  "))
	assert.Equal(t, "", Normalize("   "))
}
