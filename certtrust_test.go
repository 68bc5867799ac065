package certtrust

import (
	"crypto/x509"
	"strings"
	"testing"
)

func TestIDOf_SameDERSameID(t *testing.T) {
	// WHY: Certificates are map keys in every store; two separately parsed
	// copies of the same DER must collapse to one identity.
	t.Parallel()
	cert := selfSigned(t, "id.example.com")

	copyCert, err := x509.ParseCertificate(cert.Raw)
	if err != nil {
		t.Fatal(err)
	}
	if cert == copyCert {
		t.Fatal("expected distinct pointers")
	}
	if IDOf(cert) != IDOf(copyCert) {
		t.Error("IDOf differs for the same DER")
	}
	if IDOf(cert) != IDFromDER(cert.Raw) {
		t.Error("IDFromDER disagrees with IDOf")
	}

	other := selfSigned(t, "other.example.com")
	if IDOf(cert) == IDOf(other) {
		t.Error("different certificates share an ID")
	}
}

func TestTag_Format(t *testing.T) {
	// WHY: Tag is used as a persisted alias; it must be stable uppercase
	// SHA-512 hex (128 characters).
	t.Parallel()
	cert := selfSigned(t, "tag.example.com")

	tag := Tag(cert)
	if len(tag) != 128 {
		t.Fatalf("len(Tag) = %d, want 128", len(tag))
	}
	if tag != strings.ToUpper(tag) {
		t.Errorf("Tag should be uppercase, got %s", tag)
	}
	if Tag(cert) != tag {
		t.Error("Tag is not deterministic")
	}
}

func TestParseDER_Empty(t *testing.T) {
	// WHY: Malformed CheckTrusted messages carry empty bytes; parsing must
	// return an error instead of panicking.
	t.Parallel()
	if _, err := ParseDER(nil); err == nil {
		t.Error("expected error for empty DER")
	}
	if _, err := ParseDER([]byte("garbage")); err == nil {
		t.Error("expected error for garbage DER")
	}
}

func TestParseCertificatesAny(t *testing.T) {
	// WHY: The trust command accepts DER, PEM, and PKCS#7 files; each format
	// must yield the same certificates.
	t.Parallel()
	root, intermediates, leaf := buildChain(t, 3)
	all := []*x509.Certificate{leaf, intermediates[0], root}

	p7, err := EncodePKCS7(all)
	if err != nil {
		t.Fatalf("EncodePKCS7: %v", err)
	}

	tests := []struct {
		name string
		data []byte
		want int
	}{
		{"DER", leaf.Raw, 1},
		{"PEM", CertsToPEM(all), 3},
		{"PKCS7", p7, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			certs, err := ParseCertificatesAny(tt.data)
			if err != nil {
				t.Fatalf("ParseCertificatesAny: %v", err)
			}
			if len(certs) != tt.want {
				t.Fatalf("got %d certs, want %d", len(certs), tt.want)
			}
			if IDOf(certs[0]) != IDOf(leaf) {
				t.Error("first certificate should be the leaf")
			}
		})
	}

	if _, err := ParseCertificatesAny([]byte("not a certificate")); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestColonHex(t *testing.T) {
	// WHY: Fingerprints shown to users are colon-separated; odd lengths must
	// not drop the trailing nibble.
	t.Parallel()
	tests := []struct {
		in   []byte
		want string
	}{
		{nil, ""},
		{[]byte{0xab}, "ab"},
		{[]byte{0x01, 0x02, 0xff}, "01:02:ff"},
	}
	for _, tt := range tests {
		if got := ColonHex(tt.in); got != tt.want {
			t.Errorf("ColonHex(%x) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatCN_Fallbacks(t *testing.T) {
	// WHY: Listings must show something readable even for certificates
	// without a common name.
	t.Parallel()
	cert := selfSigned(t, "cn.example.com")
	if got := FormatCN(cert); got != "cn.example.com" {
		t.Errorf("FormatCN = %q", got)
	}

	noCN := *cert
	noCN.Subject.CommonName = ""
	if got := FormatCN(&noCN); got != "cn.example.com" {
		t.Errorf("FormatCN without CN = %q, want SAN fallback", got)
	}

	noCN.DNSNames = nil
	if got := FormatCN(&noCN); !strings.HasPrefix(got, "serial:") {
		t.Errorf("FormatCN without CN or SAN = %q, want serial fallback", got)
	}
}
