package main

import (
	"testing"
)

func TestPeerTable(t *testing.T) {
	cfg := &Config{
		Peers: []string{"10.0.0.2:4040=1", " 10.0.0.7:4040=3 ", "10.0.0.9:4040", ""},
	}

	peers, err := cfg.PeerTable()
	if err != nil {
		t.Fatalf("peer table: %v", err)
	}

	if len(peers) != 3 {
		t.Fatalf("expected 3 peers, got %d", len(peers))
	}

	if peers[0].Address != "10.0.0.2:4040" || peers[0].HopDistance != 1 {
		t.Fatalf("unexpected first peer %+v", peers[0])
	}
	if peers[1].Address != "10.0.0.7:4040" || peers[1].HopDistance != 3 {
		t.Fatalf("unexpected second peer %+v", peers[1])
	}

	// entries without a hop default to one hop away
	if peers[2].Address != "10.0.0.9:4040" || peers[2].HopDistance != 1 {
		t.Fatalf("unexpected third peer %+v", peers[2])
	}
}

func TestPeerTableInvalidHop(t *testing.T) {
	cfg := &Config{Peers: []string{"10.0.0.2:4040=close"}}

	if _, err := cfg.PeerTable(); err == nil {
		t.Fatal("expected error for non-numeric hop")
	}
}
