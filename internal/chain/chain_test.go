package chain

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Network
		wantErr bool
	}{
		{"mainnet", Mainnet, false},
		{"testnet", Testnet, false},
		{"", Mainnet, false},
		{"regtest", "", true},
		{"Mainnet", "", true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParams(t *testing.T) {
	if Mainnet.Params().Name != "mainnet" {
		t.Errorf("mainnet params name = %q", Mainnet.Params().Name)
	}
	if Testnet.Params().Name != "testnet3" {
		t.Errorf("testnet params name = %q", Testnet.Params().Name)
	}
}
