package discovery

import (
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/slacerda85/ihodl-sub007/channeldb"
	"github.com/slacerda85/ihodl-sub007/lncrypto"
	"github.com/slacerda85/ihodl-sub007/lnwire"
)

// newTestGraph opens a fresh on-disk SQLite graph db per test. A real
// file (rather than ":memory:") avoids database/sql handing out a
// second pooled connection to a distinct, empty in-memory database
// mid-test.
func newTestGraph(t *testing.T) *channeldb.ChannelGraph {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.db")
	g, err := channeldb.OpenChannelGraph(path)
	if err != nil {
		t.Fatalf("OpenChannelGraph: %v", err)
	}
	t.Cleanup(func() { g.Close() })
	return g
}

func newTestKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	k, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("NewPrivateKey: %v", err)
	}
	return k
}

func signDigest(t *testing.T, priv *btcec.PrivateKey, data []byte) lnwire.Sig {
	t.Helper()
	hash := digestHash(data)
	ecSig := lncrypto.Sign(priv, hash)
	sig, err := lnwire.NewSigFromSignature(ecSig)
	if err != nil {
		t.Fatalf("NewSigFromSignature: %v", err)
	}
	return sig
}

// buildAndSignChannelAnnouncement builds a ChannelAnnouncement for scid
// owned by the two node/bitcoin keypairs and signs all four fields, the
// same four-signature scheme ValidateChannelAnnouncement checks (spec
// §4.7).
func buildAndSignChannelAnnouncement(t *testing.T, chainHash [32]byte, scid lncrypto.ShortChannelID,
	node1, node2, bitcoin1, bitcoin2 *btcec.PrivateKey) *lnwire.ChannelAnnouncement {
	t.Helper()

	a := &lnwire.ChannelAnnouncement{
		Features:       lnwire.NewRawFeatureVector(),
		ChainHash:      chainHash,
		ShortChannelID: scid,
		NodeID1:        node1.PubKey(),
		NodeID2:        node2.PubKey(),
		BitcoinKey1:    bitcoin1.PubKey(),
		BitcoinKey2:    bitcoin2.PubKey(),
	}
	data, err := a.DigestTBS()
	if err != nil {
		t.Fatalf("DigestTBS: %v", err)
	}
	a.NodeSig1 = signDigest(t, node1, data)
	a.NodeSig2 = signDigest(t, node2, data)
	a.BitcoinSig1 = signDigest(t, bitcoin1, data)
	a.BitcoinSig2 = signDigest(t, bitcoin2, data)
	return a
}

func buildAndSignChannelUpdate(t *testing.T, chainHash [32]byte, scid lncrypto.ShortChannelID,
	direction uint8, timestamp uint32, feeBaseMSat uint32, signer *btcec.PrivateKey) *lnwire.ChannelUpdate {
	t.Helper()

	u := &lnwire.ChannelUpdate{
		ChainHash:       chainHash,
		ShortChannelID:  scid,
		Timestamp:       timestamp,
		ChannelFlags:    direction,
		CLTVExpiryDelta: 40,
		HTLCMinimumMSat: 1000,
		FeeBaseMSat:     feeBaseMSat,
		FeeProportionalMillionths: 1,
		HTLCMaximumMSat: 1_000_000_000,
	}
	data, err := u.DigestTBS()
	if err != nil {
		t.Fatalf("DigestTBS: %v", err)
	}
	u.Signature = signDigest(t, signer, data)
	return u
}

// TestProcessChannelUpdateRejectsUnknownChannel enforces spec §4.7's
// ordering requirement: a channel_update must not be accepted before its
// channel_announcement.
func TestProcessChannelUpdateRejectsUnknownChannel(t *testing.T) {
	var chainHash [32]byte
	g := newTestGraph(t)
	gossiper := New(g, chainHash)

	node1 := newTestKey(t)
	scid := lncrypto.ShortChannelID{BlockHeight: 500_000, TxIndex: 1, TxPosition: 0}
	update := buildAndSignChannelUpdate(t, chainHash, scid, 0, 100, 1000, node1)

	if _, err := gossiper.ProcessChannelUpdate(update, node1.PubKey()); err != ErrChannelUnknown {
		t.Fatalf("ProcessChannelUpdate on unannounced channel = %v, want ErrChannelUnknown", err)
	}
}

// TestGossipMonotonicity is the §8 property test: once a channel is
// announced, a channel_update only takes effect if its timestamp is
// strictly newer than whatever is already stored — an older or
// equal-timestamp update, even with a perfectly valid signature, must be
// silently ignored rather than regressing the stored policy.
func TestGossipMonotonicity(t *testing.T) {
	var chainHash [32]byte
	g := newTestGraph(t)
	gossiper := New(g, chainHash)

	node1, node2 := newTestKey(t), newTestKey(t)
	bitcoin1, bitcoin2 := newTestKey(t), newTestKey(t)
	scid := lncrypto.ShortChannelID{BlockHeight: 600_000, TxIndex: 7, TxPosition: 0}

	ann := buildAndSignChannelAnnouncement(t, chainHash, scid, node1, node2, bitcoin1, bitcoin2)
	if err := gossiper.ProcessChannelAnnouncement(ann, 0, 1_000_000, [32]byte{0xaa}, 600_000, 1000); err != nil {
		t.Fatalf("ProcessChannelAnnouncement: %v", err)
	}

	first := buildAndSignChannelUpdate(t, chainHash, scid, 0, 100, 500, node1)
	applied, err := gossiper.ProcessChannelUpdate(first, node1.PubKey())
	if err != nil {
		t.Fatalf("ProcessChannelUpdate(first): %v", err)
	}
	if !applied {
		t.Fatalf("expected first update (the only one on file) to apply")
	}

	stale := buildAndSignChannelUpdate(t, chainHash, scid, 0, 100, 999, node1)
	applied, err = gossiper.ProcessChannelUpdate(stale, node1.PubKey())
	if err != nil {
		t.Fatalf("ProcessChannelUpdate(stale): %v", err)
	}
	if applied {
		t.Fatalf("update with timestamp equal to the stored one must not apply")
	}

	older := buildAndSignChannelUpdate(t, chainHash, scid, 0, 50, 999, node1)
	applied, err = gossiper.ProcessChannelUpdate(older, node1.PubKey())
	if err != nil {
		t.Fatalf("ProcessChannelUpdate(older): %v", err)
	}
	if applied {
		t.Fatalf("update older than the stored one must not apply")
	}

	dir0, _, err := g.FetchPolicies(scid.ToUint64())
	if err != nil {
		t.Fatalf("FetchPolicies: %v", err)
	}
	if dir0 == nil || dir0.FeeBaseMSat != 500 {
		t.Fatalf("stored policy regressed: got %+v, want fee_base_msat=500 (from the first update)", dir0)
	}

	newer := buildAndSignChannelUpdate(t, chainHash, scid, 0, 200, 750, node1)
	applied, err = gossiper.ProcessChannelUpdate(newer, node1.PubKey())
	if err != nil {
		t.Fatalf("ProcessChannelUpdate(newer): %v", err)
	}
	if !applied {
		t.Fatalf("strictly newer timestamp must apply")
	}
	dir0, _, err = g.FetchPolicies(scid.ToUint64())
	if err != nil {
		t.Fatalf("FetchPolicies: %v", err)
	}
	if dir0 == nil || dir0.FeeBaseMSat != 750 {
		t.Fatalf("newer update did not take effect: got %+v, want fee_base_msat=750", dir0)
	}
}

// TestProcessChannelUpdateRejectsBadSignature confirms a channel_update
// signed by the wrong key is rejected outright, never reaching the
// monotonicity check.
func TestProcessChannelUpdateRejectsBadSignature(t *testing.T) {
	var chainHash [32]byte
	g := newTestGraph(t)
	gossiper := New(g, chainHash)

	node1, node2 := newTestKey(t), newTestKey(t)
	bitcoin1, bitcoin2 := newTestKey(t), newTestKey(t)
	scid := lncrypto.ShortChannelID{BlockHeight: 700_000, TxIndex: 3, TxPosition: 0}

	ann := buildAndSignChannelAnnouncement(t, chainHash, scid, node1, node2, bitcoin1, bitcoin2)
	if err := gossiper.ProcessChannelAnnouncement(ann, 0, 1_000_000, [32]byte{0xbb}, 700_000, 1000); err != nil {
		t.Fatalf("ProcessChannelAnnouncement: %v", err)
	}

	impostor := newTestKey(t)
	update := buildAndSignChannelUpdate(t, chainHash, scid, 0, 100, 1000, impostor)
	if _, err := gossiper.ProcessChannelUpdate(update, node1.PubKey()); err != ErrInvalidSignature {
		t.Fatalf("ProcessChannelUpdate with wrong signer = %v, want ErrInvalidSignature", err)
	}
}
