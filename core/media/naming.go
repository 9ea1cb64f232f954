package media

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const tempOwner = "temp"

// now and randomSuffix are swapped in tests.
var (
	now          = time.Now
	randomSuffix = randomBase36
)

func randomBase36() string {
	// ~52 bits, the same entropy class as a 10 character base36 string
	n, err := rand.Int(rand.Reader, big.NewInt(1<<52))
	if err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return strconv.FormatInt(n.Int64(), 36)
}

// FileName builds "{epochMillis}-{base36Random}.{ext}".
func FileName(ext string) string {
	return strconv.FormatInt(now().UnixMilli(), 10) + "-" + randomSuffix() + "." + ext
}

// BuildPath builds "stories/{ownerID|temp}/{fileName}".
func BuildPath(ownerID, fileName string) string {
	owner := strings.Trim(ownerID, "/ ")
	if owner == "" {
		owner = tempOwner
	}
	return "stories/" + owner + "/" + fileName
}
