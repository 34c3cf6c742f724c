package sign

import (
	"testing"
	"time"

	"github.com/curaview/framegate/creds"
	"github.com/stretchr/testify/require"
)

var testCredentials = creds.Credentials{
	AccessKeyID:     "AKIDEXAMPLE",
	SecretAccessKey: "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY",
}

func TestSignEmptyBody(t *testing.T) {
	// Reference vector: GET / with no body. The body hash must be the
	// SHA-256 of the empty string and the signature must match exactly.
	out, err := Sign(Input{
		Method:      "GET",
		Host:        "runtime-medical-imaging.us-east-1.amazonaws.com",
		Path:        "/",
		Region:      "us-east-1",
		Service:     "medical-imaging",
		Time:        time.Date(2015, 8, 30, 12, 36, 0, 0, time.UTC),
		Credentials: testCredentials,
	})
	require.Nil(t, err)

	require.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		out.Headers["X-Amz-Content-Sha256"])
	require.Equal(t, "20150830T123600Z", out.Headers["X-Amz-Date"])
	require.Equal(t,
		"2dcaf6ee1958e1261dcd3df2735de2fdf763d7a23fa4a8def6192c44ec342109",
		out.Signature)
	require.Equal(t,
		"AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20150830/us-east-1/medical-imaging/aws4_request, "+
			"SignedHeaders=host;x-amz-content-sha256;x-amz-date, "+
			"Signature=2dcaf6ee1958e1261dcd3df2735de2fdf763d7a23fa4a8def6192c44ec342109",
		out.Headers["Authorization"])
	_, ok := out.Headers["X-Amz-Security-Token"]
	require.False(t, ok)
}

func TestSignBridgedPostWithSessionToken(t *testing.T) {
	// Reference vector for the bridged frame request: JSON body, session
	// token present, empty query string.
	withToken := testCredentials
	withToken.SessionToken = "SESSIONTOKEN"

	out, err := Sign(Input{
		Method:      "POST",
		Host:        "runtime-medical-imaging.us-east-1.amazonaws.com",
		Path:        "/datastore/d-123/imageSet/s-456/getImageFrame",
		Body:        []byte(`{"imageFrameId":"abc"}`),
		Region:      "us-east-1",
		Service:     "medical-imaging",
		Time:        time.Date(2024, 1, 15, 10, 20, 30, 0, time.UTC),
		Credentials: withToken,
	})
	require.Nil(t, err)

	require.Equal(t,
		"f224e2fc99c4f7851fdfce1b8392eecb1b179a73ccda9f3f942604b8505e33ed",
		out.Headers["X-Amz-Content-Sha256"])
	require.Equal(t, "SESSIONTOKEN", out.Headers["X-Amz-Security-Token"])
	require.Equal(t,
		"AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20240115/us-east-1/medical-imaging/aws4_request, "+
			"SignedHeaders=host;x-amz-content-sha256;x-amz-date;x-amz-security-token, "+
			"Signature=b26cf4e6809823d0ac4483c24755809ee806b1eb182dc6d24daf8b609305a830",
		out.Headers["Authorization"])
}

func TestSignDeterministic(t *testing.T) {
	in := Input{
		Method:      "POST",
		Host:        "runtime-medical-imaging.us-west-2.amazonaws.com",
		Path:        "/datastore/d-1/imageSet/s-1/getImageFrame",
		Body:        []byte(`{"imageFrameId":"frame-9"}`),
		Region:      "us-west-2",
		Service:     "medical-imaging",
		Time:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Credentials: testCredentials,
	}
	first, err := Sign(in)
	require.Nil(t, err)
	second, err := Sign(in)
	require.Nil(t, err)
	require.Equal(t, first.Headers, second.Headers)
	require.Equal(t, first.Signature, second.Signature)
}

func TestSignInvalidInput(t *testing.T) {
	valid := Input{
		Method:      "GET",
		Host:        "example.amazonaws.com",
		Region:      "us-east-1",
		Service:     "medical-imaging",
		Time:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Credentials: testCredentials,
	}

	missingSecret := valid
	missingSecret.Credentials = creds.Credentials{AccessKeyID: "AKIDEXAMPLE"}
	_, err := Sign(missingSecret)
	require.NotNil(t, err)

	missingHost := valid
	missingHost.Host = ""
	_, err = Sign(missingHost)
	require.NotNil(t, err)

	missingTime := valid
	missingTime.Time = time.Time{}
	_, err = Sign(missingTime)
	require.NotNil(t, err)
}
