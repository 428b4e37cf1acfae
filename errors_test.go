package archivefs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStructureErrorString(t *testing.T) {
	tests := []struct {
		instance *StructureError
		expected string
	}{
		{
			instance: &StructureError{Entry: "", Reason: "empty path"},
			expected: "invalid archive structure: : empty path",
		},
		{
			instance: &StructureError{Entry: `a\b`, Segment: "a", Reason: "file used as directory"},
			expected: `invalid archive structure: a\b: file used as directory at "a"`,
		},
	}

	for i, test := range tests {
		t.Run(fmt.Sprintf("Case %d", i), func(t *testing.T) {
			assert.Equal(t, test.expected, test.instance.Error())
		})
	}
}

func TestIsInvalidStructure(t *testing.T) {
	tests := []struct {
		instance error
		expected bool
	}{
		{instance: nil, expected: false},
		{instance: os.ErrNotExist, expected: false},
		{instance: errors.New("another error"), expected: false},
		{instance: &StructureError{Entry: "foo.txt"}, expected: true},
		{instance: fmt.Errorf("wrapped: %w", &StructureError{Entry: "foo.txt"}), expected: true},
	}

	for i, test := range tests {
		t.Run(fmt.Sprintf("Case %d", i), func(t *testing.T) {
			assert.Equal(t, test.expected, errors.Is(test.instance, ErrInvalidStructure))
		})
	}
}

func TestLoadError(t *testing.T) {
	err := loadError("/tmp/x.pbo", fs.ErrNotExist)
	assert.ErrorIs(t, err, ErrArchiveLoad)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), "/tmp/x.pbo")
}
