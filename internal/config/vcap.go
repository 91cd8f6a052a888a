package config

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const storageServiceLabel = "google-storage"

// VcapService is one service binding from a Cloud Foundry VCAP_SERVICES document.
type VcapService struct {
	BindingName  string         `json:"binding_name"`
	InstanceName string         `json:"instance_name"`
	Name         string         `json:"name"`
	Label        string         `json:"label"`
	Tags         []string       `json:"tags"`
	Plan         string         `json:"plan"`
	Credentials  map[string]any `json:"credentials"`
}

// ParseVcapServices decodes a VCAP_SERVICES document keyed by service label.
func ParseVcapServices(raw string) (map[string][]VcapService, error) {
	var services map[string][]VcapService
	if err := json.Unmarshal([]byte(raw), &services); err != nil {
		return nil, fmt.Errorf("unmarshal VCAP_SERVICES: %w", err)
	}
	return services, nil
}

// ApplyServiceBindings copies the first google-storage binding's bucket, project and
// service-account key into v. An unset or empty ("{}") document is a no-op.
func ApplyServiceBindings(v *viper.Viper, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "{}" {
		return nil
	}
	services, err := ParseVcapServices(raw)
	if err != nil {
		return fmt.Errorf("parse VCAP_SERVICES: %w", err)
	}
	bindings := services[storageServiceLabel]
	if len(bindings) == 0 {
		return nil
	}
	creds := bindings[0].Credentials

	if bucket := credential(creds, "bucket_name"); bucket != "" {
		v.Set("storage.backend", BackendGCS)
		v.Set("storage.gcs_bucket", bucket)
	}
	if project := credential(creds, "ProjectId"); project != "" {
		v.Set("gcp.project_id", project)
	}
	if keyData := credential(creds, "PrivateKeyData"); keyData != "" {
		decoded, err := base64.StdEncoding.DecodeString(keyData)
		if err != nil {
			return fmt.Errorf("decode %s PrivateKeyData: %w", storageServiceLabel, err)
		}
		v.Set("gcp.credentials_json", string(decoded))
	}
	return nil
}

func credential(creds map[string]any, key string) string {
	value, ok := creds[key]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}
