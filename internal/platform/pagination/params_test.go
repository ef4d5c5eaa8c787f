package pagination

import (
	"errors"
	"net/url"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size %d, got %d", DefaultPageSize, params.PageSize)
	}
	if params.PageToken != "" {
		t.Fatalf("expected empty token, got %q", params.PageToken)
	}
}

func TestParsePageSize(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		opts    Options
		want    int
		wantErr error
	}{
		{name: "explicit", raw: "25", want: 25},
		{name: "capped at max", raw: "500", want: DefaultMaxPageSize},
		{name: "custom max", raw: "80", opts: Options{MaxPageSize: 50}, want: 50},
		{name: "zero rejected", raw: "0", wantErr: ErrInvalidPageSize},
		{name: "negative rejected", raw: "-5", wantErr: ErrInvalidPageSize},
		{name: "non numeric rejected", raw: "abc", wantErr: ErrInvalidPageSize},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			values := url.Values{"pageSize": []string{tc.raw}}
			params, err := Parse(values, tc.opts)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if params.PageSize != tc.want {
				t.Fatalf("expected page size %d, got %d", tc.want, params.PageSize)
			}
		})
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cursor := Cursor{StartAfter: []any{"2026-08-01T10:00:00Z", "bkg_01H"}}
	token, err := EncodeToken(cursor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	decoded, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decoded.StartAfter) != 2 {
		t.Fatalf("expected 2 cursor values, got %d", len(decoded.StartAfter))
	}
}

func TestDecodeTokenRejectsGarbage(t *testing.T) {
	if _, err := DecodeToken("!!not-base64!!"); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
	if _, err := DecodeToken("bm90LWpzb24"); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken for non-json payload, got %v", err)
	}
}

func TestEmptyCursorEncodesEmptyToken(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token, got %q", token)
	}
}
