package roster

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nameRoster = `first,middle,last,suffix,min_year,sab,candid
jane,q,doe,nan,2018.0,oh ,126073
JOHN,nan,SMITH,jr,2010,tx,24526
mary,,oneil,,,Puerto Rico,142634
`

func TestLoad_NameRoster(t *testing.T) {
	t.Parallel()

	cands, stats, err := Load(context.Background(), []byte(nameRoster), Options{})
	require.NoError(t, err)
	require.Len(t, cands, 3)
	assert.Equal(t, Stats{Rows: 3}, stats)

	jane := cands[0]
	assert.Equal(t, "126073", jane.ID)
	assert.Equal(t, "jane q doe", jane.Name)
	assert.Equal(t, "doe", jane.LastName)
	assert.Empty(t, jane.Suffix)
	assert.Equal(t, 2018, jane.Year)
	assert.Equal(t, "Ohio", jane.Jurisdiction)
	assert.Equal(t, "OH", jane.JurisdictionCode)

	john := cands[1]
	assert.Equal(t, "JOHN SMITH jr", john.Name)
	assert.Empty(t, john.MiddleName)
	assert.Equal(t, "Texas", john.Jurisdiction)

	mary := cands[2]
	assert.Equal(t, 0, mary.Year)
	assert.Equal(t, "Puerto Rico", mary.Jurisdiction)
	assert.Empty(t, mary.JurisdictionCode)
}

func TestLoad_DocumentRoster(t *testing.T) {
	t.Parallel()

	data := "case_id,textdata\nfl-1,\"The Board finds, after hearing...\"\n,second case text\nfl-3,nan\n"
	cands, stats, err := Load(context.Background(), []byte(data), Options{})
	require.NoError(t, err)

	require.Len(t, cands, 2)
	assert.Equal(t, "fl-1", cands[0].ID)
	assert.True(t, cands[0].HasDocument())
	assert.Equal(t, "The Board finds, after hearing...", cands[0].Document)
	assert.Equal(t, "row-3", cands[1].ID)
	assert.Equal(t, 1, stats.Invalid, "row with neither name nor document")
}

func TestLoad_Latin1(t *testing.T) {
	t.Parallel()

	data := []byte("first,last,sab\nJos\xe9,Mu\xf1oz,nm\n")
	cands, _, err := Load(context.Background(), data, Options{})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "José Muñoz", cands[0].Name)
	assert.Equal(t, "New Mexico", cands[0].Jurisdiction)
}

func TestLoad_BOMAndAliases(t *testing.T) {
	t.Parallel()

	data := "\xef\xbb\xbfName,Office,State,Year\nJane Doe,State Senate,OH,2020\n"
	cands, _, err := Load(context.Background(), []byte(data), Options{})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "Jane Doe", cands[0].Name)
	assert.Equal(t, "State Senate", cands[0].Office)
	assert.Equal(t, 2020, cands[0].Year)
	assert.Equal(t, "row-2", cands[0].ID)
}

func TestLoad_Duplicates(t *testing.T) {
	t.Parallel()

	data := "first,last,sab,candid\njane,doe,oh,1\njane,doe,oh,1\njane,doe,oh,2\n"
	cands, stats, err := Load(context.Background(), []byte(data), Options{})
	require.NoError(t, err)
	assert.Len(t, cands, 2)
	assert.Equal(t, 1, stats.Duplicates)

	noID := "name,sab\nJane Doe,oh\njane  doe,OH\n"
	cands, stats, err = Load(context.Background(), []byte(noID), Options{})
	require.NoError(t, err)
	assert.Len(t, cands, 1)
	assert.Equal(t, 1, stats.Duplicates)
}

func TestLoad_InvalidRows(t *testing.T) {
	t.Parallel()

	data := "first,last,min_year\njane,doe,abc\njohn,roe,1776\nmary,major,2004\n"
	cands, stats, err := Load(context.Background(), []byte(data), Options{})
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "mary major", cands[0].Name)
	assert.Equal(t, 2, stats.Invalid)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	_, _, err := Load(context.Background(), []byte("foo,bar\n1,2\n"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no name or document column")

	_, _, err = Load(context.Background(), nil, Options{})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = Load(ctx, []byte(nameRoster), Options{})
	require.Error(t, err)
}

func TestSelect(t *testing.T) {
	t.Parallel()

	cands, _, err := Load(context.Background(), []byte(nameRoster), Options{Limit: 2})
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "126073", cands[0].ID)

	a, _, err := Load(context.Background(), []byte(nameRoster), Options{Random: true, Seed: 7})
	require.NoError(t, err)
	b, _, err := Load(context.Background(), []byte(nameRoster), Options{Random: true, Seed: 7})
	require.NoError(t, err)
	assert.Equal(t, a, b, "same seed gives the same order")
	assert.Len(t, a, 3)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "roster.csv")
	require.NoError(t, os.WriteFile(path, []byte(nameRoster), 0o600))

	cands, _, err := LoadFile(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Len(t, cands, 3)

	_, _, err = LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), Options{})
	require.Error(t, err)
}

func TestStateName(t *testing.T) {
	t.Parallel()

	name, code := StateName(" ny ")
	assert.Equal(t, "New York", name)
	assert.Equal(t, "NY", code)

	name, code = StateName("Guam")
	assert.Equal(t, "Guam", name)
	assert.Empty(t, code)
}
