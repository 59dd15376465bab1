package cqltype

import (
	"testing"

	"github.com/google/uuid"
	"gopkg.in/inf.v0"
)

func roundTrip(t *testing.T, name Name, v interface{}) interface{} {
	t.Helper()
	col, err := Encode(name, v)
	if err != nil {
		t.Fatalf("Encode(%s, %v): %v", name, v, err)
	}
	got, err := Decode(name, col)
	if err != nil {
		t.Fatalf("Decode(%s, %x): %v", name, col, err)
	}
	return got
}

func TestRoundTripVarchar(t *testing.T) {
	if got := roundTrip(t, Varchar, "column1"); got != "column1" {
		t.Fatalf("got %v, want column1", got)
	}
}

func TestRoundTripBigint(t *testing.T) {
	if got := roundTrip(t, Bigint, int64(-42)); got != int64(-42) {
		t.Fatalf("got %v, want -42", got)
	}
}

func TestRoundTripInt(t *testing.T) {
	if got := roundTrip(t, Int, int64(2)); got != int64(2) {
		t.Fatalf("got %v, want 2", got)
	}
}

func TestRoundTripBoolean(t *testing.T) {
	if got := roundTrip(t, Boolean, true); got != true {
		t.Fatalf("got %v, want true", got)
	}
	if got := roundTrip(t, Boolean, false); got != false {
		t.Fatalf("got %v, want false", got)
	}
}

func TestRoundTripUUID(t *testing.T) {
	id := uuid.New()
	got := roundTrip(t, Uuid, id.String())
	if got != id.String() {
		t.Fatalf("got %v, want %v", got, id.String())
	}
}

func TestRoundTripBlob(t *testing.T) {
	got := roundTrip(t, Blob, []byte{1, 2, 3})
	b, ok := got.([]byte)
	if !ok || len(b) != 3 || b[0] != 1 {
		t.Fatalf("got %v", got)
	}
}

func TestRoundTripInet(t *testing.T) {
	got := roundTrip(t, Inet, "127.0.0.1")
	if got != "127.0.0.1" {
		t.Fatalf("got %v, want 127.0.0.1", got)
	}
}

func TestRoundTripDecimalNegative(t *testing.T) {
	d := new(inf.Dec)
	if _, ok := d.SetString("-12.34"); !ok {
		t.Fatal("failed to parse decimal literal")
	}
	col, err := Encode(Decimal, d)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(Decimal, col)
	if err != nil {
		t.Fatal(err)
	}
	dec := got.(*inf.Dec)
	if dec.String() != "-12.34" {
		t.Fatalf("got %s, want -12.34", dec.String())
	}
}

func TestRoundTripDecimalPositive(t *testing.T) {
	d := new(inf.Dec)
	if _, ok := d.SetString("99.5"); !ok {
		t.Fatal("failed to parse decimal literal")
	}
	col, err := Encode(Decimal, d)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(Decimal, col)
	if err != nil {
		t.Fatal(err)
	}
	dec := got.(*inf.Dec)
	if dec.String() != "99.5" {
		t.Fatalf("got %s, want 99.5", dec.String())
	}
}

func TestEncodeNilIsNullColumn(t *testing.T) {
	col, err := Encode(Varchar, nil)
	if err != nil {
		t.Fatal(err)
	}
	if col != nil {
		t.Fatalf("got %v, want nil", col)
	}
}

func TestEncodeWrongGoTypeErrors(t *testing.T) {
	if _, err := Encode(Bigint, "not a number"); err == nil {
		t.Fatal("expected an error encoding a string as bigint")
	}
}

func TestUnknownTypeErrors(t *testing.T) {
	if _, err := DataType("nonsense"); err == nil {
		t.Fatal("expected an error for an unknown type name")
	}
}
