package types

// RentalInitializePayload lists the sender's asset. Addresses use the
// human-readable form.
type RentalInitializePayload struct {
	Record     string `json:"record"`
	Bump       uint8  `json:"bump"`
	OwnerAsset string `json:"ownerAsset"`
	Price      uint64 `json:"price"`
	Expiration int64  `json:"expiration"`
}

// RentalBorrowPayload rents the listing stored at Record.
type RentalBorrowPayload struct {
	Record string `json:"record"`
	Bump   uint8  `json:"bump"`
}

// RentalWithdrawPayload reclaims the asset into OwnerAsset.
type RentalWithdrawPayload struct {
	Record     string `json:"record"`
	Bump       uint8  `json:"bump"`
	Custody    string `json:"custody"`
	OwnerAsset string `json:"ownerAsset"`
}
