package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/hiking-logger/internal/locations"
)

func TestID_String(t *testing.T) {
	assert.Equal(t, "BMP2", IDBeacon.String())
	assert.Equal(t, "SWAP", IDSwapLocIndexes.String())
	assert.Equal(t, "0x00000001", ID(1).String())
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		wire []byte
		want Packet
	}{
		{
			name: "beacon",
			wire: []byte{'2', 'P', 'M', 'B', 0x06, 0xFF, 0xFF, 0xFF, 0xCD, 0x8B, 0x01, 0x00},
			want: Beacon{Temperature: -250, Pressure: 101325},
		},
		{
			name: "sync",
			wire: []byte{
				'C', 'N', 'Y', 'S',
				0x10, 0x0E, 0x96, 0x5D,
				0xE8, 0x03, 0x00, 0x00,
				0x00, 0x00, 0x00, 0x00,
				0x03, 0x00,
				0x07, 0x00,
				0x01,
			},
			want: Sync{Time: 0x5D960E10, StartTime: 1000, StartLocIndex: 3, EndLocIndex: 7, LogIsFull: true},
		},
		{
			name: "get location with queue padding",
			wire: []byte{'C', 'O', 'L', 'G', 0x05, 0x00, 0, 0},
			want: LocIndex{Kind: IDGetLocation, Index: 5},
		},
		{
			name: "start",
			wire: []byte{'T', 'R', 'T', 'S', 0xE8, 0x03, 0x00, 0x00},
			want: Time{Kind: IDStartLog, Time: 1000},
		},
		{
			name: "end",
			wire: []byte{'L', 'D', 'N', 'E'},
			want: Request{Kind: IDEndLog},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.wire)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			n := map[ID]int{IDBeacon: BeaconSize, IDSync: SyncSize, IDGetLocation: LocIndexSize, IDStartLog: TimeSize, IDEndLog: RequestSize}[got.ID()]
			assert.Equal(t, tt.wire[:n], Marshal(got))
		})
	}
}

func TestDecode_Location(t *testing.T) {
	p := Location{
		Index: 4,
		Link:  locations.Link{Prev: 2, Next: 9, Location: locations.Location{Elevation: 14505, Name: "MT WHITNEY"}},
	}
	wire := Marshal(p)
	require.Len(t, wire, LocationSize)
	assert.Equal(t, []byte{'C', 'O', 'L', 'H', 4, 0, 2, 0, 9, 0}, wire[:10])

	got, err := Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode([]byte{1, 2})
	assert.ErrorIs(t, err, ErrShortPacket)

	_, err = Decode([]byte{'2', 'P', 'M', 'B', 0, 0})
	assert.ErrorIs(t, err, ErrShortPacket)

	_, err = Decode([]byte{'X', 'X', 'X', 'X'})
	assert.ErrorIs(t, err, ErrUnknownID)
}
