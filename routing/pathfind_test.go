package routing

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/slacerda85/ihodl-sub007/lncrypto"
)

func testKey(t *testing.T, seed byte) *btcec.PublicKey {
	t.Helper()
	var raw [32]byte
	raw[31] = seed
	priv := btcec.PrivKeyFromBytes(raw[:])
	return priv.PubKey()
}

func addBidirEdge(g *Graph, a, b [33]byte, scid uint64, base uint32, ppm uint32, cltv uint16, now time.Time) {
	id := lncrypto.NewShortChannelIDFromUint64(scid)
	policy := &EdgePolicy{FeeBaseMSat: base, FeeProportionalMillionths: ppm, CLTVDelta: cltv, HTLCMaxMSat: 10_000_000_000, LastUpdate: now}
	g.AddEdge(&Edge{ShortChannelID: id, FromNode: a, ToNode: b, Policy: policy})
	g.AddEdge(&Edge{ShortChannelID: id, FromNode: b, ToNode: a, Policy: policy})
}

// TestFindPathThreeHop reproduces spec §8 scenario 4: A-B-C-D with
// identical (base=1000msat, ppm=1, cltv=40) policies on each edge and a
// 100,000 msat final amount.
func TestFindPathThreeHop(t *testing.T) {
	now := time.Now()
	g := NewGraph()

	a := testKey(t, 1)
	b := testKey(t, 2)
	c := testKey(t, 3)
	d := testKey(t, 4)

	var ak, bk, ck, dk [33]byte
	copy(ak[:], a.SerializeCompressed())
	copy(bk[:], b.SerializeCompressed())
	copy(ck[:], c.SerializeCompressed())
	copy(dk[:], d.SerializeCompressed())

	addBidirEdge(g, ak, bk, 1, 1000, 1, 40, now)
	addBidirEdge(g, bk, ck, 2, 1000, 1, 40, now)
	addBidirEdge(g, ck, dk, 3, 1000, 1, 40, now)

	route, err := FindPath(FindPathParams{
		Graph:          g,
		Source:         ak,
		Destination:    dk,
		AmountMsat:     100_000,
		FinalCLTVDelta: 18,
		CurrentHeight:  1000,
	})
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	if len(route.Hops) != 3 {
		t.Fatalf("expected 3 hops, got %d", len(route.Hops))
	}

	wantAmounts := []uint64{100_002_100, 100_001_100, 100_000}
	for i, h := range route.Hops {
		if h.AmountToForward != wantAmounts[i] {
			t.Errorf("hop %d amount = %d, want %d", i, h.AmountToForward, wantAmounts[i])
		}
	}
}

func TestFindPathNoRoute(t *testing.T) {
	g := NewGraph()
	a := testKey(t, 1)
	z := testKey(t, 99)
	var ak, zk [33]byte
	copy(ak[:], a.SerializeCompressed())
	copy(zk[:], z.SerializeCompressed())

	_, err := FindPath(FindPathParams{Graph: g, Source: ak, Destination: zk, AmountMsat: 1000, CurrentHeight: 100})
	if err != ErrNoRoute {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}

func TestFindPathSkipsDisabledEdge(t *testing.T) {
	now := time.Now()
	g := NewGraph()
	a := testKey(t, 1)
	b := testKey(t, 2)
	var ak, bk [33]byte
	copy(ak[:], a.SerializeCompressed())
	copy(bk[:], b.SerializeCompressed())

	id := lncrypto.NewShortChannelIDFromUint64(7)
	policy := &EdgePolicy{FeeBaseMSat: 1, Disabled: true, LastUpdate: now, HTLCMaxMSat: 1_000_000}
	g.AddEdge(&Edge{ShortChannelID: id, FromNode: ak, ToNode: bk, Policy: policy})

	_, err := FindPath(FindPathParams{Graph: g, Source: ak, Destination: bk, AmountMsat: 1000, CurrentHeight: 100})
	if err != ErrNoRoute {
		t.Fatalf("expected ErrNoRoute for disabled edge, got %v", err)
	}
}
