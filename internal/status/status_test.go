package status

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloading_Clamps(t *testing.T) {
	assert.Equal(t, 0, Downloading(-5).Progress)
	assert.Equal(t, 55, Downloading(55).Progress)
	assert.Equal(t, 100, Downloading(250).Progress)
}

func TestFileStatus_JSON(t *testing.T) {
	tests := []struct {
		status FileStatus
		json   string
	}{
		{status: Idle(), json: `{"state":"idle","label":"No File!"}`},
		{status: Downloading(0), json: `{"state":"downloading","label":"Downloading...","progress":0}`},
		{status: Downloading(42), json: `{"state":"downloading","label":"Downloading...","progress":42}`},
		{status: Downloaded("/data/user_42/7/file_1.mp4"), json: `{"state":"downloaded","label":"Downloaded!","path":"/data/user_42/7/file_1.mp4"}`},
		{status: Moving(), json: `{"state":"moving","label":"Moving >>>"}`},
		{status: Error("cannot download"), json: `{"state":"error","label":"Error!","cause":"cannot download"}`},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			b, err := json.Marshal(tt.status)
			require.NoError(t, err)
			assert.JSONEq(t, tt.json, string(b))

			var decoded FileStatus
			require.NoError(t, json.Unmarshal(b, &decoded))
			assert.Equal(t, tt.status, decoded)
		})
	}
}

func TestFileStatus_UnmarshalUnknown(t *testing.T) {
	var s FileStatus
	require.Error(t, json.Unmarshal([]byte(`{"state":"exploded"}`), &s))
}

func TestFileStatus_String(t *testing.T) {
	assert.Equal(t, "idle", Idle().String())
	assert.Equal(t, "downloading(12)", Downloading(12).String())
	assert.Equal(t, "downloaded(/a)", Downloaded("/a").String())
	assert.Equal(t, "moving", Moving().String())
	assert.Equal(t, "error(x)", Error("x").String())
}
