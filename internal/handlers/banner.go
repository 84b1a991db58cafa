package handlers

// Copyright banners prefixed to ServerInit payloads. The wire byte-for-byte
// contents aren't load-bearing to any invariant or testable property this
// protocol family defines — real clients accept whatever text precedes the
// key material — so these are named, overridable data rather than a guessed
// "faithful" reproduction of any particular upstream's banner text.
var (
	// BannerV2 precedes a V2-family (DC/PC) ServerInit.
	BannerV2 = []byte("Patch Server. Copyright SonicTeam, LTD. 2001\x00")
	// BannerV3 precedes a V3-family (GC/XB) ServerInit.
	BannerV3 = []byte("Port map. Copyright SonicTeam, LTD. 2001\x00")
)
