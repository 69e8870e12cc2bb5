package errors

import (
	"fmt"
	"testing"
)

func TestExitCodeMapping(t *testing.T) {
	if got := ExitCode(nil); got != 0 {
		t.Fatalf("nil error exit code = %d, want 0", got)
	}
	if got := ExitCode(New(CodeInsufficientFunds, "balance below fee")); got != 13 {
		t.Fatalf("exit code = %d, want 13", got)
	}
	if got := ExitCode(fmt.Errorf("plain")); got != int(CodeInternal) {
		t.Fatalf("untyped error exit code = %d, want %d", got, CodeInternal)
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := fmt.Errorf("rpc: connection refused")
	err := Wrap(CodeProviderUnavailable, "connect wallet provider", cause)
	cliErr, ok := As(fmt.Errorf("outer: %w", err))
	if !ok {
		t.Fatalf("expected typed error through wrapping")
	}
	if cliErr.Code != CodeProviderUnavailable {
		t.Fatalf("code = %d, want %d", cliErr.Code, CodeProviderUnavailable)
	}
	if cliErr.Unwrap() != cause {
		t.Fatalf("unwrap did not return cause")
	}
}

func TestClassOf(t *testing.T) {
	cases := []struct {
		code Code
		want RetryClass
	}{
		{CodeProviderUnavailable, RetrySafe},
		{CodeNetworkMismatch, RetrySafe},
		{CodeFeedUnavailable, RetrySafe},
		{CodeUserDeclined, RetryNeedsUser},
		{CodeInsufficientFunds, RetryNeedsUser},
		{CodeOnChainRejected, RetryInvestigate},
		{CodeUnconfirmed, RetryInvestigate},
		{CodeUsage, RetryUnclassified},
	}
	for _, tc := range cases {
		if got := ClassOf(New(tc.code, "x")); got != tc.want {
			t.Fatalf("ClassOf(%d) = %s, want %s", tc.code, got, tc.want)
		}
	}
	if got := ClassOf(fmt.Errorf("plain")); got != RetryUnclassified {
		t.Fatalf("untyped error class = %s, want %s", got, RetryUnclassified)
	}
}
