package database_test

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"strings"
	"testing"

	"github.com/dashpay/dashspv/database"
)

type keyValuePair struct {
	key   *database.Key
	value []byte
}

var cursorTestBucket = database.MakeBucket([]byte("blocks"), []byte("main"))

func heightKey(height uint32) *database.Key {
	var suffix [4]byte
	binary.BigEndian.PutUint32(suffix[:], height)
	return cursorTestBucket.Key(suffix[:])
}

// prepareCursorForTest stores entries for heights 0 to count-1 in the test
// bucket plus one entry in a sibling bucket, and opens a cursor on the test
// bucket.
func prepareCursorForTest(t *testing.T, db database.Database, testName string, count uint32) (database.Cursor, []keyValuePair) {
	entries := make([]keyValuePair, count)
	for height := uint32(0); height < count; height++ {
		entries[height] = keyValuePair{key: heightKey(height), value: []byte{byte(height)}}
	}
	// Written out of order; the cursor must return them sorted.
	for i := len(entries) - 1; i >= 0; i-- {
		err := db.Put(entries[i].key, entries[i].value)
		if err != nil {
			t.Fatalf("%s: Put unexpectedly failed: %s", testName, err)
		}
	}
	sibling := database.MakeBucket([]byte("blocks"), []byte("other")).Key([]byte{0, 0, 0, 0})
	err := db.Put(sibling, []byte("sibling"))
	if err != nil {
		t.Fatalf("%s: Put unexpectedly failed: %s", testName, err)
	}

	cursor, err := db.Cursor(cursorTestBucket)
	if err != nil {
		t.Fatalf("%s: Cursor unexpectedly failed: %s", testName, err)
	}
	return cursor, entries
}

func TestCursorIteration(t *testing.T) {
	testForAllDatabaseTypes(t, "TestCursorIteration", testCursorIteration)
}

func testCursorIteration(t *testing.T, db database.Database, testName string) {
	cursor, entries := prepareCursorForTest(t, db, testName, 5)
	defer cursor.Close()

	for _, entry := range entries {
		if !cursor.Next() {
			t.Fatalf("%s: cursor unexpectedly done", testName)
		}
		key, err := cursor.Key()
		if err != nil {
			t.Fatalf("%s: Key unexpectedly failed: %s", testName, err)
		}
		if !reflect.DeepEqual(key, entry.key) {
			t.Fatalf("%s: cursor returned key %s, want %s", testName, key, entry.key)
		}
		value, err := cursor.Value()
		if err != nil {
			t.Fatalf("%s: Value unexpectedly failed: %s", testName, err)
		}
		if !bytes.Equal(value, entry.value) {
			t.Fatalf("%s: cursor returned value %x, want %x", testName, value, entry.value)
		}
	}

	// Entries of the sibling bucket are out of range.
	if cursor.Next() {
		t.Fatalf("%s: cursor unexpectedly not done", testName)
	}
	_, err := cursor.Key()
	if !database.IsNotFoundError(err) {
		t.Fatalf("%s: Key of an exhausted cursor returned %v, want ErrNotFound", testName, err)
	}

	if !cursor.First() {
		t.Fatalf("%s: First unexpectedly returned false", testName)
	}
	key, err := cursor.Key()
	if err != nil {
		t.Fatalf("%s: Key unexpectedly failed: %s", testName, err)
	}
	if !reflect.DeepEqual(key, entries[0].key) {
		t.Fatalf("%s: First moved to %s, want %s", testName, key, entries[0].key)
	}
}

func TestCursorSeek(t *testing.T) {
	testForAllDatabaseTypes(t, "TestCursorSeek", testCursorSeek)
}

func testCursorSeek(t *testing.T, db database.Database, testName string) {
	cursor, entries := prepareCursorForTest(t, db, testName, 5)
	defer cursor.Close()

	err := cursor.Seek(entries[3].key)
	if err != nil {
		t.Fatalf("%s: Seek unexpectedly failed: %s", testName, err)
	}
	value, err := cursor.Value()
	if err != nil {
		t.Fatalf("%s: Value unexpectedly failed: %s", testName, err)
	}
	if !bytes.Equal(value, entries[3].value) {
		t.Fatalf("%s: Seek moved to value %x, want %x", testName, value, entries[3].value)
	}
	if !cursor.Next() {
		t.Fatalf("%s: Next after Seek unexpectedly returned false", testName)
	}
	key, err := cursor.Key()
	if err != nil {
		t.Fatalf("%s: Key unexpectedly failed: %s", testName, err)
	}
	if !reflect.DeepEqual(key, entries[4].key) {
		t.Fatalf("%s: Next after Seek moved to %s, want %s", testName, key, entries[4].key)
	}

	err = cursor.Seek(heightKey(100))
	if !database.IsNotFoundError(err) {
		t.Fatalf("%s: Seek of a missing key returned %v, want ErrNotFound", testName, err)
	}
}

func TestCursorClosed(t *testing.T) {
	testForAllDatabaseTypes(t, "TestCursorClosed", testCursorClosed)
}

func testCursorClosed(t *testing.T, db database.Database, testName string) {
	cursor, _ := prepareCursorForTest(t, db, testName, 3)
	err := cursor.Close()
	if err != nil {
		t.Fatalf("%s: Close unexpectedly failed: %s", testName, err)
	}

	if cursor.First() || cursor.Next() {
		t.Fatalf("%s: a closed cursor moved", testName)
	}

	tests := []struct {
		name     string
		function func() error
	}{
		{name: "Seek", function: func() error { return cursor.Seek(heightKey(0)) }},
		{name: "Key", function: func() error { _, err := cursor.Key(); return err }},
		{name: "Value", function: func() error { _, err := cursor.Value(); return err }},
		{name: "Close", function: cursor.Close},
	}
	for _, test := range tests {
		err := test.function()
		if err == nil || !strings.Contains(err.Error(), "closed cursor") {
			t.Fatalf("%s: %s on a closed cursor returned %v", testName, test.name, err)
		}
	}
}
