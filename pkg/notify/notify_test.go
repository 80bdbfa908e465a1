package notify

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/synkerd/pkg/metadata"
	metamem "github.com/marmos91/synkerd/pkg/metadata/memory"
)

func TestDispatcherDeliversPerUser(t *testing.T) {
	d := NewDispatcher(4)

	alice := uuid.New()
	bob := uuid.New()

	aliceCh, cancelAlice := d.Subscribe(alice)
	defer cancelAlice()
	bobCh, cancelBob := d.Subscribe(bob)
	defer cancelBob()

	d.Publish(alice, metadata.ChangeOp{Seq: 1, Path: "/a.txt"})

	select {
	case op := <-aliceCh:
		require.Equal(t, metadata.Cursor(1), op.Seq)
	case <-time.After(time.Second):
		t.Fatal("alice's subscriber never received the entry")
	}

	select {
	case op := <-bobCh:
		t.Fatalf("bob received alice's entry: %+v", op)
	default:
	}
}

func TestDispatcherDropsOnFullBuffer(t *testing.T) {
	d := NewDispatcher(1)

	userID := uuid.New()
	ch, cancel := d.Subscribe(userID)
	defer cancel()

	// Nobody reads: the first entry fills the buffer, the second drops.
	d.Publish(userID, metadata.ChangeOp{Seq: 1})
	d.Publish(userID, metadata.ChangeOp{Seq: 2})

	require.Equal(t, uint64(1), d.Dropped())
	require.Equal(t, metadata.Cursor(1), (<-ch).Seq)
}

func TestDispatcherCancelClosesChannel(t *testing.T) {
	d := NewDispatcher(1)

	userID := uuid.New()
	ch, cancel := d.Subscribe(userID)
	cancel()

	_, open := <-ch
	require.False(t, open)

	// Publishing after cancel is a no-op.
	d.Publish(userID, metadata.ChangeOp{Seq: 1})
	require.Zero(t, d.Dropped())

	cancel() // idempotent
}

func TestDispatcherReceivesStoreMutations(t *testing.T) {
	meta := metamem.NewStore()
	defer meta.Close()

	d := NewDispatcher(8)
	meta.SetChangeSink(d)

	user := &metadata.User{ID: metadata.DeterministicUserID("alice"), Username: "alice", Active: true}
	require.NoError(t, meta.PutUser(context.Background(), user))
	rootID, err := meta.GetUserRoot(context.Background(), user.ID)
	require.NoError(t, err)

	ch, cancel := d.Subscribe(user.ID)
	defer cancel()

	_, err = meta.CreateNode(context.Background(), &metadata.FileNode{
		OwnerID:  user.ID,
		ParentID: &rootID,
		Name:     "notes.txt",
		Size:     1,
		Checksum: "ab",
	}, "laptop")
	require.NoError(t, err)

	select {
	case op := <-ch:
		require.Equal(t, metadata.ChangeCreated, op.Type)
		require.Equal(t, "/notes.txt", op.Path)
		require.Equal(t, "laptop", op.Origin)
	case <-time.After(time.Second):
		t.Fatal("mutation never reached the dispatcher")
	}
}

func TestMultiFansOut(t *testing.T) {
	d1 := NewDispatcher(1)
	d2 := NewDispatcher(1)

	userID := uuid.New()
	ch1, cancel1 := d1.Subscribe(userID)
	defer cancel1()
	ch2, cancel2 := d2.Subscribe(userID)
	defer cancel2()

	Multi{d1, LogSink{}, d2}.Publish(userID, metadata.ChangeOp{Seq: 7})

	require.Equal(t, metadata.Cursor(7), (<-ch1).Seq)
	require.Equal(t, metadata.Cursor(7), (<-ch2).Seq)
}
