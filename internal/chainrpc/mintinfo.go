package chainrpc

import (
	"encoding/json"

	"github.com/nyxsignal/oracle/pkg/optional"
)

// parsedMintAccount mirrors the JSON-parsed shape Solana validators return
// for an SPL token mint account (encoding="jsonParsed").
type parsedMintAccount struct {
	Parsed struct {
		Info struct {
			MintAuthority   *string `json:"mintAuthority"`
			FreezeAuthority *string `json:"freezeAuthority"`
		} `json:"info"`
	} `json:"parsed"`
}

// parseMintAuthorities extracts mint/freeze authority presence from a
// jsonParsed account-info payload (§6 assetMetadata: mint_authority?,
// freeze_authority? are optional — a null authority means it was revoked).
func parseMintAuthorities(raw []byte) AssetMetadata {
	var acc parsedMintAccount
	if err := json.Unmarshal(raw, &acc); err != nil {
		return AssetMetadata{}
	}

	meta := AssetMetadata{}
	if acc.Parsed.Info.MintAuthority != nil {
		meta.MintAuthority = optional.Known(*acc.Parsed.Info.MintAuthority)
	}
	if acc.Parsed.Info.FreezeAuthority != nil {
		meta.FreezeAuthority = optional.Known(*acc.Parsed.Info.FreezeAuthority)
	}
	return meta
}
