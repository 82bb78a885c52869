package room

import "testing"

type fakeSocket struct{ closed bool }

func (f *fakeSocket) Close() error {
	f.closed = true
	return nil
}

func TestRosterBindAssignsFreshIdentity(t *testing.T) {
	r := NewRoster()
	c, previous := r.Bind(BindRequest{Name: "alice"}, "srv-1", "1.2.3.4")
	if previous != nil {
		t.Fatal("expected no previous socket for a brand new client")
	}
	if len(c.UUID) != 36 || len(c.Pin) != 36 {
		t.Fatalf("expected uuid/pin to be generated, got uuid=%q pin=%q", c.UUID, c.Pin)
	}
	if !c.IsOnline || c.ServerID != "srv-1" || c.RemoteAddr != "1.2.3.4" {
		t.Fatalf("unexpected client state: %+v", c)
	}
}

func TestRosterBindRebindsOnMatchingPin(t *testing.T) {
	r := NewRoster()
	c, _ := r.Bind(BindRequest{Name: "alice"}, "srv-1", "1.1.1.1")
	sock := &fakeSocket{}
	r.Attach(c.UUID, sock)

	rebound, previous := r.Bind(BindRequest{UUID: c.UUID, Pin: c.Pin, Name: "alice2"}, "srv-1", "2.2.2.2")
	if rebound != c {
		t.Fatal("expected the same Client record to be reused on rebind")
	}
	if previous != Socket(sock) {
		t.Fatal("expected the previously attached socket to be returned for disconnection")
	}
	if rebound.Name != "alice2" || rebound.RemoteAddr != "2.2.2.2" {
		t.Fatalf("expected rebind to refresh name/remoteAddr, got %+v", rebound)
	}
}

func TestRosterBindRejectsWrongPin(t *testing.T) {
	r := NewRoster()
	c, _ := r.Bind(BindRequest{Name: "alice"}, "srv-1", "1.1.1.1")

	other, previous := r.Bind(BindRequest{UUID: c.UUID, Pin: "wrong-pin", Name: "mallory"}, "srv-1", "9.9.9.9")
	if other == c {
		t.Fatal("a mismatched pin must not reuse the existing record")
	}
	if previous != nil {
		t.Fatal("a fresh identity has no previous socket")
	}
}

func TestRosterMarkOfflineRetainsRecord(t *testing.T) {
	r := NewRoster()
	c, _ := r.Bind(BindRequest{Name: "alice"}, "srv-1", "")
	r.Attach(c.UUID, &fakeSocket{})

	r.MarkOffline(c.UUID)

	got, ok := r.Get(c.UUID)
	if !ok {
		t.Fatal("expected the Client record to survive MarkOffline")
	}
	if got.IsOnline {
		t.Fatal("expected IsOnline to be false after MarkOffline")
	}
}

func TestRosterReconcileReplacesPeerRecordsIdempotently(t *testing.T) {
	r := NewRoster()
	peerClients := []DistClient{{UUID: "u1", Name: "bob", ServerID: "srv-2"}}

	r.Reconcile("srv-2", peerClients)
	r.Reconcile("srv-2", peerClients) // idempotent

	online := r.SnapshotOnline()
	if len(online) != 1 || online[0].UUID != "u1" {
		t.Fatalf("SnapshotOnline = %v, want exactly one bob record", online)
	}
}

func TestRosterPruneDeadServersRemovesOnlyThatServer(t *testing.T) {
	r := NewRoster()
	r.Reconcile("srv-2", []DistClient{{UUID: "u1", Name: "bob", ServerID: "srv-2"}})
	r.Bind(BindRequest{Name: "alice"}, "srv-1", "")

	r.PruneDeadServers([]string{"srv-2"})

	if _, ok := r.Get("u1"); ok {
		t.Fatal("expected bob's record to be pruned with its dead server")
	}
	if len(r.LocalOnline("srv-1")) != 1 {
		t.Fatal("expected srv-1's own client to survive pruning srv-2")
	}
}

func TestRosterRemoteServerIDsExcludesSelf(t *testing.T) {
	r := NewRoster()
	r.Bind(BindRequest{Name: "alice"}, "srv-1", "")
	r.Reconcile("srv-2", []DistClient{{UUID: "u1", Name: "bob", ServerID: "srv-2"}})

	ids := r.RemoteServerIDs("srv-1")
	if len(ids) != 1 || ids[0] != "srv-2" {
		t.Fatalf("RemoteServerIDs = %v, want [srv-2]", ids)
	}
}

func TestRosterSeedDoesNotOverwriteExisting(t *testing.T) {
	r := NewRoster()
	c, _ := r.Bind(BindRequest{Name: "alice"}, "srv-1", "")

	r.Seed(&Client{UUID: c.UUID, Name: "stale-copy"})

	got, _ := r.Get(c.UUID)
	if got.Name != "alice" {
		t.Fatalf("Seed must not overwrite an already-present record, got name=%q", got.Name)
	}
}
