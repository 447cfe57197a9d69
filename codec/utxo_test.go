package codec

import "testing"

func TestUtxoId(t *testing.T) {
	tests := []struct {
		name  string
		txId  string
		index uint32
		want  string
	}{
		{name: "index zero", txId: "abcd", index: 0, want: "abcd0"},
		{name: "index nonzero", txId: "abcd", index: 12, want: "abcd12"},
		{name: "longer hex tx id", txId: "aa11bb22cc33dd44ee55ff66", index: 1, want: "aa11bb22cc33dd44ee55ff661"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UtxoId(tt.txId, tt.index)
			if got != tt.want {
				t.Errorf("UtxoId(%q, %d) = %q, want %q", tt.txId, tt.index, got, tt.want)
			}
		})
	}
}

func TestUtxoId_DistinctIndicesDistinctIds(t *testing.T) {
	a := UtxoId("deadbeef", 1)
	b := UtxoId("deadbeef", 2)
	if a == b {
		t.Errorf("expected distinct ids for distinct indices, both were %q", a)
	}
}
