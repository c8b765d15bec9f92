package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in      string
		want    Location
		wantErr bool
	}{
		{in: "internal", want: LocationInternal},
		{in: "SDCard", want: LocationSDCard},
		{in: " sdcard ", want: LocationSDCard},
		{in: "0", want: LocationInternal},
		{in: "1", want: LocationSDCard},
		{in: "usb", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLocation(tt.in)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocationFromOrdinal(t *testing.T) {
	assert.Equal(t, LocationInternal, LocationFromOrdinal(0))
	assert.Equal(t, LocationSDCard, LocationFromOrdinal(1))
	assert.Equal(t, LocationInternal, LocationFromOrdinal(7))
	assert.Equal(t, LocationInternal, LocationFromOrdinal(-1))
}

func TestLocation_TextRoundTrip(t *testing.T) {
	var loc Location

	require.NoError(t, loc.UnmarshalText([]byte("sdcard")))
	assert.Equal(t, LocationSDCard, loc)

	b, err := loc.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "sdcard", string(b))

	require.Error(t, loc.UnmarshalText([]byte("floppy")))
}

func TestLayout(t *testing.T) {
	l := NewLayout("42", "7", "")

	assert.Equal(t, filepath.Join("/data", "user_42", "7"), l.Dir("/data"))
	assert.Equal(t, filepath.Join("/data", "user_42", "7", "file_1.mp4"), l.File("/data"))

	custom := NewLayout("1", "2", "book.epub")
	assert.Equal(t, filepath.Join("/mnt/sd", "user_1", "2", "book.epub"), custom.File("/mnt/sd"))
}

func TestGenerateInstanceID(t *testing.T) {
	a := GenerateInstanceID()
	b := GenerateInstanceID()

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
