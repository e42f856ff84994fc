package tilemap

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Tnze/go-mc/nbt"
	"github.com/Tnze/go-mc/save"
)

type BlockStateMultipart struct {
	Apply json.RawMessage `json:"apply"`
	When  json.RawMessage `json:"when"`
}

type BlockStateMultipartApply struct {
	Model string `json:"model"`
}

type BlockStateMultipartWhen map[string]string
type BlockStateMultipartWhenOr struct {
	Or []BlockStateMultipartWhen `json:"OR"`
}

type BlockStateVariant struct {
	Model string `json:"model"`
}

type BlockStateInfo struct {
	Variants  map[string]json.RawMessage `json:"variants"`
	Multipart []BlockStateMultipart      `json:"multipart"`
}

type ModelInfo struct {
	Parent   string            `json:"parent"`
	Textures map[string]string `json:"textures"`
}

// resourceName strips the namespace from ids like "minecraft:stone".
func resourceName(id string) string {
	if idx := strings.IndexByte(id, ':'); idx >= 0 {
		return id[idx+1:]
	}
	return id
}

func makeStatePropertiesMap(msg nbt.RawMessage) (map[string]string, error) {
	props := map[string]string{}
	if msg.Type == nbt.TagEnd {
		return props, nil
	}

	if err := msg.Unmarshal(&props); err != nil {
		return nil, err
	}
	return props, nil
}

// stateKey is a stable identifier for a block state including its properties.
func stateKey(state save.BlockState) string {
	props, err := makeStatePropertiesMap(state.Properties)
	if err != nil || len(props) == 0 {
		return state.Name
	}

	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(state.Name)
	sb.WriteByte('[')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(props[k])
	}
	sb.WriteByte(']')
	return sb.String()
}

func decodeVariants(raw json.RawMessage) []BlockStateVariant {
	var variants []BlockStateVariant
	if err := json.Unmarshal(raw, &variants); err == nil {
		return variants
	}

	var v BlockStateVariant
	if err := json.Unmarshal(raw, &v); err == nil {
		return []BlockStateVariant{v}
	}
	return nil
}

func parseVariantProperties(raw string) map[string]string {
	result := make(map[string]string)
	if raw == "" || raw == "normal" {
		return result
	}
	for _, part := range strings.Split(raw, ",") {
		k, v, _ := strings.Cut(part, "=")
		result[k] = v
	}
	return result
}

// findVariantModel picks the model of the first variant whose conditions all
// match properties.
func findVariantModel(properties map[string]string, raw map[string]json.RawMessage) (string, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		matches := true
		for pk, pv := range parseVariantProperties(k) {
			if properties[pk] != pv {
				matches = false
				break
			}
		}
		if !matches {
			continue
		}

		variants := decodeVariants(raw[k])
		if len(variants) == 0 {
			return "", fmt.Errorf("variant %q has no models", k)
		}
		return variants[0].Model, nil
	}

	return "", fmt.Errorf("no variant matches %v", properties)
}

func decodeMultipart(raw BlockStateMultipart) ([]BlockStateMultipartApply, []BlockStateMultipartWhen, error) {
	applies := []BlockStateMultipartApply{}
	whens := []BlockStateMultipartWhen{}

	var apply BlockStateMultipartApply
	if err := json.Unmarshal(raw.Apply, &apply); err == nil {
		applies = append(applies, apply)
	} else if err := json.Unmarshal(raw.Apply, &applies); err != nil {
		return nil, nil, fmt.Errorf("invalid multipart apply %s: %w", string(raw.Apply), err)
	}

	if len(raw.When) > 0 {
		var when BlockStateMultipartWhen
		var whenOr BlockStateMultipartWhenOr
		if err := json.Unmarshal(raw.When, &whenOr); err == nil && len(whenOr.Or) > 0 {
			whens = append(whens, whenOr.Or...)
		} else if err := json.Unmarshal(raw.When, &when); err == nil {
			whens = append(whens, when)
		} else if err := json.Unmarshal(raw.When, &whens); err != nil {
			return nil, nil, fmt.Errorf("invalid multipart when %s: %w", string(raw.When), err)
		}
	}

	return applies, whens, nil
}

func whenMatches(properties map[string]string, when BlockStateMultipartWhen) bool {
	for k, v := range when {
		ok := false
		for _, option := range strings.Split(v, "|") {
			if properties[k] == option {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// findMultipartModel returns the model of the first part that applies to
// properties. Unconditional parts always apply.
func findMultipartModel(properties map[string]string, raw []BlockStateMultipart) (string, error) {
	for _, part := range raw {
		applies, whens, err := decodeMultipart(part)
		if err != nil {
			return "", err
		}
		if len(applies) == 0 {
			continue
		}

		if len(whens) == 0 {
			return applies[0].Model, nil
		}
		for _, when := range whens {
			if whenMatches(properties, when) {
				return applies[0].Model, nil
			}
		}
	}

	// fall back to the first part so blocks like fences still get a colour
	for _, part := range raw {
		applies, _, err := decodeMultipart(part)
		if err == nil && len(applies) > 0 {
			return applies[0].Model, nil
		}
	}
	return "", fmt.Errorf("no multipart model applies")
}

// pickTexture chooses the texture that best represents a block seen from above.
func pickTexture(textures map[string]string) string {
	if len(textures) == 1 {
		for _, v := range textures {
			return v
		}
	}
	for _, name := range []string{"top", "all", "texture", "end", "side", "particle"} {
		if v, ok := textures[name]; ok && !strings.HasPrefix(v, "#") {
			return v
		}
	}

	keys := make([]string, 0, len(textures))
	for k := range textures {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := textures[k]; !strings.HasPrefix(v, "#") {
			return v
		}
	}
	return ""
}
