package bybit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
)

// Sign computes the v5 HMAC-SHA256 signature of a GET request:
// hex(hmac(secret, timestamp + apiKey + recvWindow + queryString)).
func Sign(secret string, timestamp int64, apiKey string, recvWindowMs int64, query string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte(apiKey))
	mac.Write([]byte(strconv.FormatInt(recvWindowMs, 10)))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *RESTClient) signRequest(req *http.Request) {
	if c.creds.Empty() {
		return
	}
	ts := c.now().UnixMilli()
	recv := c.recvWindow.Milliseconds()

	req.Header.Set("X-BAPI-API-KEY", c.creds.APIKey)
	req.Header.Set("X-BAPI-TIMESTAMP", strconv.FormatInt(ts, 10))
	req.Header.Set("X-BAPI-RECV-WINDOW", strconv.FormatInt(recv, 10))
	req.Header.Set("X-BAPI-SIGN-TYPE", "2")
	req.Header.Set("X-BAPI-SIGN", Sign(c.creds.APISecret, ts, c.creds.APIKey, recv, req.URL.RawQuery))
}
