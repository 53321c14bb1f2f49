package models

import "testing"

func TestClassifySecurity(t *testing.T) {
	tests := []struct {
		capabilities string
		want         bool
	}{
		{"[WPA2-PSK-CCMP][ESS]", true},
		{"[WPA3-SAE-CCMP][ESS]", true},
		{"[WPA-PSK-TKIP]", true},
		{"[WEP][ESS]", true},
		{"[WPA2-EAP-CCMP][ESS]", true},
		{"[ESS]", false},
		{"", false},
		{"[wpa2-psk-ccmp]", true}, // case-insensitive
	}

	for _, tt := range tests {
		if got := ClassifySecurity(tt.capabilities); got != tt.want {
			t.Errorf("ClassifySecurity(%q) = %v, want %v", tt.capabilities, got, tt.want)
		}
	}
}

func TestTransferStateTerminal(t *testing.T) {
	terminal := []TransferState{TransferCompleted, TransferFailed, TransferCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}

	live := []TransferState{TransferPending, TransferActive}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("expected %s not to be terminal", s)
		}
	}
}
