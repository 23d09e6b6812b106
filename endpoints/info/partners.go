package info

import (
	"encoding/json"
	"net/http"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/prebid/prebid-headertag/exchange"
	"github.com/prebid/prebid-headertag/partners"
)

type partnerInfo struct {
	PartnerID     string            `json:"partnerId"`
	Namespace     string            `json:"namespace,omitempty"`
	StatsID       string            `json:"statsId"`
	Version       string            `json:"version"`
	TargetingType string            `json:"targetingType"`
	TargetingKeys map[string]string `json:"targetingKeys,omitempty"`
	LineItemType  string            `json:"lineItemType,omitempty"`
	CallbackType  string            `json:"callbackType,omitempty"`
	Architecture  string            `json:"architecture,omitempty"`
	RequestType   string            `json:"requestType,omitempty"`
	Disabled      bool              `json:"disabled"`
}

// NewPartnersEndpoint implements /info/partners. Profiles are read on every call since stored
// profiles may change them at runtime.
func NewPartnersEndpoint(adapted map[string]exchange.AdaptedPartner) httprouter.Handle {
	return httprouter.Handle(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		response, err := json.Marshal(partnerInfos(adapted))
		if err != nil {
			glog.Errorf("error creating /info/partners response: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(response); err != nil {
			glog.Errorf("error writing response to /info/partners: %v", err)
		}
	})
}

// NewPartnerDetailsEndpoint implements /info/partners/:partnerName
func NewPartnerDetailsEndpoint(adapted map[string]exchange.AdaptedPartner) httprouter.Handle {
	return httprouter.Handle(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		forPartner := ps.ByName("partnerName")
		partner, ok := adapted[forPartner]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		response, err := json.Marshal(newPartnerInfo(partner))
		if err != nil {
			glog.Errorf("error creating /info/partners/%s response: %v", forPartner, err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(response); err != nil {
			glog.Errorf("error writing response to /info/partners/%s: %v", forPartner, err)
		}
	})
}

func partnerInfos(adapted map[string]exchange.AdaptedPartner) map[string]partnerInfo {
	infos := make(map[string]partnerInfo, len(adapted))
	for name, partner := range adapted {
		infos[name] = newPartnerInfo(partner)
	}
	return infos
}

func newPartnerInfo(partner exchange.AdaptedPartner) partnerInfo {
	profile := partner.Profile()
	version := profile.Version
	if v, err := partners.ParseVersion(profile); err == nil {
		version = v.String()
	}
	return partnerInfo{
		PartnerID:     profile.PartnerID,
		Namespace:     profile.Namespace,
		StatsID:       profile.StatsID,
		Version:       version,
		TargetingType: profile.TargetingType,
		TargetingKeys: profile.TargetingKeys,
		LineItemType:  profile.LineItemType,
		CallbackType:  profile.CallbackType,
		Architecture:  profile.Architecture,
		RequestType:   profile.RequestType,
		Disabled:      profile.Disabled,
	}
}
