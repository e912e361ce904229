package dda

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ddaharness/internal/types"
)

func sampleReport() *Report {
	req := request("ST", "CT", "DE")
	req.Channels = []int{0, 2}
	req.CTPairs = []types.ChannelPair{{0, 2}}
	req.ModelTerms = []int{1, 2, 10}
	return &Report{
		RunID:   "run-1",
		Request: req,
		Results: map[string]*types.DecodedResult{
			"ST": {Variant: "ST", Matrix: [][]float64{{1, 2}, {3, 4}}, SourcePath: "/w/run-1_ST"},
			"CT": {Variant: "CT", Matrix: [][]float64{{5, 6}}, SourcePath: "/w/run-1_CT"},
			"DE": {Variant: "DE", Warnings: []string{"no output file for DE"}},
		},
	}
}

func TestReport_Variants(t *testing.T) {
	assert.Equal(t, []string{"ST", "CT", "DE"}, sampleReport().Variants())
}

func TestReport_Document(t *testing.T) {
	r := sampleReport()
	labels := []string{"Fp1", "Fp2", "Cz"}

	doc, err := r.Document("ST", labels)
	require.NoError(t, err)
	assert.Equal(t, [2]int{2, 2}, doc.Shape)
	assert.Equal(t, []string{"Fp1", "Cz"}, doc.ChannelNames)
	assert.Equal(t, "Single Timeseries", doc.VariantName)
	if diff := cmp.Diff([]int{7, 8, 9, 10}, doc.Parameters.Delays); diff != "" {
		t.Errorf("delays mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, doc.Parameters.Pairs)

	doc, err = r.Document("CT", labels)
	require.NoError(t, err)
	assert.Equal(t, []string{"Fp1-Cz"}, doc.ChannelNames)
	assert.Equal(t, []types.ChannelPair{{0, 2}}, doc.Parameters.Pairs)
}

func TestReport_DocumentLowercaseVariant(t *testing.T) {
	doc, err := sampleReport().Document("ct", []string{"Fp1", "Fp2", "Cz"})
	require.NoError(t, err)
	assert.Equal(t, "CT", doc.Variant)
	assert.Equal(t, []string{"Fp1-Cz"}, doc.ChannelNames)
	assert.Equal(t, []types.ChannelPair{{0, 2}}, doc.Parameters.Pairs)
}

func TestReport_DocumentGenericNames(t *testing.T) {
	doc, err := sampleReport().Document("ST", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ch0", "ch2"}, doc.ChannelNames)
}

func TestReport_DocumentRowMismatch(t *testing.T) {
	r := sampleReport()
	r.Results["ST"].Matrix = [][]float64{{1}, {2}, {3}}

	doc, err := r.Document("ST", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"row0", "row1", "row2"}, doc.ChannelNames)
	require.Len(t, doc.Warnings, 1)
	assert.Contains(t, doc.Warnings[0], "3 row(s) but 2 label(s)")
}

func TestReport_DocumentErrors(t *testing.T) {
	r := sampleReport()

	_, err := r.Document("XX", nil)
	assert.ErrorIs(t, err, types.ErrUnknownVariant)

	_, err = r.Document("DE", nil)
	assert.ErrorIs(t, err, types.ErrOutputNotFound)

	_, err = r.Document("SY", nil)
	assert.Error(t, err)
}

func TestReport_Documents(t *testing.T) {
	docs, err := sampleReport().Documents(nil)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "ST", docs[0].Variant)
	assert.Equal(t, "CT", docs[1].Variant)
}

func TestDocument_JSON(t *testing.T) {
	doc, err := sampleReport().Document("ST", []string{"Fp1", "Fp2", "Cz"})
	require.NoError(t, err)

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, []any{2.0, 2.0}, raw["shape"])
	assert.Equal(t, []any{"Fp1", "Cz"}, raw["channel_names"])
	params := raw["parameters"].(map[string]any)
	assert.Equal(t, "patient1.edf", params["input_path"])
	assert.Equal(t, 125.0, params["window_length"])
}

func TestReport_CollectWarnings(t *testing.T) {
	r := sampleReport()
	r.Process = &types.ProcessResult{ExitCode: 139, Artifact: "/w/run-1_ST", Truncated: true}
	r.collectWarnings()

	assert.Equal(t, []string{
		"binary exited 139 after writing output",
		"captured process output was truncated",
		"DE: no output file for DE",
	}, r.Warnings)
}
