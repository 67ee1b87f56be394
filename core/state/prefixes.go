package state

var (
	accountPrefix = []byte("account/")
	assetPrefix   = []byte("asset/")
	rentalPrefix  = []byte("rental/record/")
	pausePrefix   = []byte("pause/")
)
