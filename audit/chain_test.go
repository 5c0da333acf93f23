package audit

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/byteness/sentinel-gateway/gateway"
)

var testChainKey = []byte("0123456789abcdef0123456789abcdef")

func TestChain_AppendSetsHash(t *testing.T) {
	c := newChain(testChainKey)
	env := NewEnvelope(uuid.New(), EventUserAction, "alice", uuid.New(), gateway.Internal, "op")

	chained, err := c.append(env)
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if chained.ChainHash == "" {
		t.Error("expected ChainHash to be set")
	}
	if c.head() != chained.ChainHash {
		t.Errorf("head() = %q, want %q", c.head(), chained.ChainHash)
	}
}

func TestChain_LinksSequentially(t *testing.T) {
	c := newChain(testChainKey)
	env1 := NewEnvelope(uuid.New(), EventUserAction, "alice", uuid.New(), gateway.Internal, "op1")
	env2 := NewEnvelope(uuid.New(), EventUserAction, "alice", uuid.New(), gateway.Internal, "op2")

	chained1, _ := c.append(env1)
	chained2, _ := c.append(env2)

	if chained1.ChainHash == chained2.ChainHash {
		t.Error("distinct envelopes should produce distinct chain hashes")
	}
	if c.head() != chained2.ChainHash {
		t.Error("head should track the most recent append")
	}
}

func TestVerifyChain_ValidChain(t *testing.T) {
	c := newChain(testChainKey)
	var envelopes []ForensicEnvelope
	for i := 0; i < 5; i++ {
		env := NewEnvelope(uuid.New(), EventUserAction, "alice", uuid.New(), gateway.Internal, "op")
		chained, err := c.append(env)
		require.NoError(t, err)
		envelopes = append(envelopes, chained)
	}

	ok, brokenAt := VerifyChain(testChainKey, envelopes)
	require.True(t, ok, "expected chain to verify, broken at index %d", brokenAt)
	require.Equal(t, -1, brokenAt)
}

func TestVerifyChain_TamperedEnvelope(t *testing.T) {
	c := newChain(testChainKey)
	var envelopes []ForensicEnvelope
	for i := 0; i < 3; i++ {
		env := NewEnvelope(uuid.New(), EventUserAction, "alice", uuid.New(), gateway.Internal, "op")
		chained, _ := c.append(env)
		envelopes = append(envelopes, chained)
	}

	envelopes[1].Action = "tampered"

	ok, brokenAt := VerifyChain(testChainKey, envelopes)
	if ok {
		t.Error("expected tampered chain to fail verification")
	}
	if brokenAt != 1 {
		t.Errorf("brokenAt = %d, want 1", brokenAt)
	}
}

func TestVerifyChain_WrongKey(t *testing.T) {
	c := newChain(testChainKey)
	env := NewEnvelope(uuid.New(), EventUserAction, "alice", uuid.New(), gateway.Internal, "op")
	chained, _ := c.append(env)

	ok, _ := VerifyChain([]byte("different-key-different-key-pad"), []ForensicEnvelope{chained})
	if ok {
		t.Error("expected verification with wrong key to fail")
	}
}
