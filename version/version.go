package version

// Ver holds the version derived from the latest git tag.
// Populated using:
//
//	go build -ldflags "-X github.com/prebid/prebid-headertag/version.Ver=`git describe --tags | sed 's/^v//`'"
var Ver = ""

// Rev holds the binary revision string.
// Populated using:
//
//	go build -ldflags "-X github.com/prebid/prebid-headertag/version.Rev=`git rev-parse HEAD`"
var Rev = ""
