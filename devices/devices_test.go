package devices

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	id   ID
	kind string
}

func (d *fakeDevice) ID() ID         { return d.id }
func (d *fakeDevice) Kind() string   { return d.kind }
func (d *fakeDevice) String() string { return fmt.Sprintf("%s:%d", d.kind, d.id) }

func fakeResolver(known ...ID) Resolver {
	return func(id ID) (Device, error) {
		for _, k := range known {
			if k == id {
				return &fakeDevice{id: id, kind: "fake"}, nil
			}
		}
		return nil, errors.Errorf("unknown device %d", id)
	}
}

func TestListRoundTrip(t *testing.T) {
	list := List{
		&fakeDevice{id: 0, kind: "fake"},
		&fakeDevice{id: 3, kind: "fake"},
		&fakeDevice{id: 1, kind: "fake"},
	}
	data := list.AppendWire(nil)

	got, err := FromWire(data, fakeResolver(0, 1, 2, 3))
	require.NoError(t, err)
	// Order is preserved, not sorted.
	assert.Equal(t, []ID{0, 3, 1}, got.IDs())
	assert.True(t, list.Equal(got))
	assert.Equal(t, "[fake:0 fake:3 fake:1]", got.String())
}

func TestEmptyList(t *testing.T) {
	var list List
	data := list.AppendWire(nil)
	assert.Empty(t, data)

	got, err := FromWire(data, fakeResolver())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUnresolvedDevice(t *testing.T) {
	list := List{&fakeDevice{id: 7, kind: "fake"}}
	data := list.AppendWire(nil)

	_, err := FromWire(data, fakeResolver(0, 1))
	require.ErrorIs(t, err, ErrUnresolvedDevice)
	assert.Contains(t, err.Error(), "device id 7")
}

func TestNilResolverAndNilHandle(t *testing.T) {
	list := List{&fakeDevice{id: 0, kind: "fake"}}
	data := list.AppendWire(nil)

	_, err := FromWire(data, nil)
	require.ErrorContains(t, err, "no device resolver")

	// A resolver must never hand back a nil handle without an error.
	_, err = FromWire(data, func(ID) (Device, error) { return nil, nil })
	require.ErrorIs(t, err, ErrUnresolvedDevice)
}

func TestFind(t *testing.T) {
	list := List{
		&fakeDevice{id: 2, kind: "fake"},
		&fakeDevice{id: 5, kind: "fake"},
	}
	dev, found := list.Find(5)
	require.True(t, found)
	assert.Equal(t, ID(5), dev.ID())

	_, found = list.Find(9)
	assert.False(t, found)
}
