// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := []Packet{
		{Type: Confirmable, Code: GET, MessageID: 0x1234, Token: []byte{0xAB}},
		{
			Type:      Confirmable,
			Code:      POST,
			MessageID: 0x0001,
			Token:     []byte{0x01, 0x02, 0x03, 0x04},
			Options: []Option{
				{ID: OptionURIPath, Value: []byte("device")},
				{ID: OptionURIPath, Value: []byte("42")},
				{ID: OptionContentFormat, Value: EncodeUint(uint32(AppJSON))},
			},
			Payload: []byte(`{"temp":23.5}`),
		},
		{
			Type:      Acknowledgement,
			Code:      Content,
			MessageID: 0xFFFF,
			Options: []Option{
				{ID: OptionObserve, Value: EncodeUint(16777215)},
			},
			Payload: make([]byte, 300),
		},
	}

	for _, want := range cases {
		data, err := Encode(want)
		require.NoError(t, err)

		got, err := Decode(data)
		require.NoError(t, err)
		require.Equal(t, want.Type, got.Type)
		require.Equal(t, want.Code, got.Code)
		require.Equal(t, want.MessageID, got.MessageID)
		require.Equal(t, want.Token, got.Token)
		require.Equal(t, want.Payload, got.Payload)
		require.Equal(t, want.Options, got.Options)

		data2, err := Encode(got)
		require.NoError(t, err)
		require.Equal(t, data, data2)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := [][]byte{
		nil,
		{0x00},
		{0x40, 0x01, 0x00}, // short header
		{0x49, 0x01, 0x00, 0x01},
	}
	for _, c := range cases {
		_, err := Decode(c)
		require.ErrorIs(t, err, ErrMalformed)
	}
}

func TestEncodeTokenTooLarge(t *testing.T) {
	_, err := Encode(Packet{Token: make([]byte, 9)})
	require.ErrorIs(t, err, ErrTokenSize)
}

func TestUintCoding(t *testing.T) {
	for _, v := range []uint32{0, 1, 255, 256, 65535, 65536, 16777215} {
		require.Equal(t, v, DecodeUint(EncodeUint(v)))
	}
}
