package credit

var (
	assetPrefix   = []byte("credit/asset/")
	assetIndexKey = []byte("credit/assets/index")
	accountPrefix = []byte("credit/account/")
	relayerPrefix = []byte("credit/relayer/")
	totalsKey     = []byte("credit/totals")
	paramsKey     = []byte("credit/params")
)

func assetKey(asset [20]byte) []byte {
	return append(append([]byte(nil), assetPrefix...), asset[:]...)
}

func accountKey(user [20]byte) []byte {
	return append(append([]byte(nil), accountPrefix...), user[:]...)
}

func relayerKey(relayer [20]byte) []byte {
	return append(append([]byte(nil), relayerPrefix...), relayer[:]...)
}
