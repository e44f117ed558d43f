package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripAllMethods(t *testing.T) {
	cases := []struct {
		method string
		params interface{}
	}{
		{MethodTaskProposal, &TaskProposal{TaskID: "t-1", Skill: "image_generation", MaxBid: 10, Deadline: 1700000000}},
		{MethodBidSubmission, &BidSubmission{TaskID: "t-1", Bidder: "peer-a", Price: 6.5, ETA: 1700000060}},
		{MethodWorkProof, &WorkProof{TaskID: "t-1", Worker: "peer-a", Proof: []byte("artifact-hash")}},
		{MethodPaymentFinalize, &PaymentFinalize{TaskID: "t-1", SettlementRef: "esc-9", Outcome: "released"}},
	}

	for _, tc := range cases {
		t.Run(tc.method, func(t *testing.T) {
			data, err := Encode(tc.method, tc.params)
			require.NoError(t, err)

			env, decoded, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, Version, env.JSONRPC)
			assert.Equal(t, tc.method, env.Method)
			assert.NotEmpty(t, env.ID)
			assert.Equal(t, tc.params, decoded)
		})
	}
}

func TestDecodeUnknownMethod(t *testing.T) {
	data, err := Encode("SelfDestruct", map[string]string{"x": "y"})
	require.NoError(t, err)

	_, _, err = Decode(data)
	require.Error(t, err)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Reason, "unknown method")
}

func TestDecodeTruncated(t *testing.T) {
	data, err := Encode(MethodTaskProposal, &TaskProposal{TaskID: "t-1", Skill: "x", MaxBid: 1, Deadline: 1})
	require.NoError(t, err)

	_, _, err = Decode(data[:len(data)/2])
	var de *DecodeError
	require.ErrorAs(t, err, &de)
}

func TestDecodeMissingFields(t *testing.T) {
	// Structurally valid JSON but a proposal without a task id must be rejected.
	data, err := Encode(MethodTaskProposal, &TaskProposal{Skill: "x"})
	require.NoError(t, err)

	_, _, err = Decode(data)
	var de *DecodeError
	require.ErrorAs(t, err, &de)

	// Params of the wrong shape entirely.
	data, err = Encode(MethodBidSubmission, []int{1, 2, 3})
	require.NoError(t, err)
	_, _, err = Decode(data)
	require.ErrorAs(t, err, &de)
}

func TestDecodeWrongVersion(t *testing.T) {
	_, _, err := Decode([]byte(`{"jsonrpc":"1.0","method":"TaskProposal","params":{},"id":"1"}`))
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Reason, "version")
}
