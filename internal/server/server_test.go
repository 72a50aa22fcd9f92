package server

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"econ-empire/internal/game"

	"github.com/golang-jwt/jwt/v5"
)

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp := doRequest(t, env.ts, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
}

func TestAPIRequiresValidToken(t *testing.T) {
	env := newTestEnv(t)
	expectError(t, doRequest(t, env.ts, http.MethodPost, "/api/games", "", nil), http.StatusUnauthorized, "unauthenticated")
	expectError(t, doRequest(t, env.ts, http.MethodPost, "/api/games", "not-a-token", nil), http.StatusUnauthorized, "unauthenticated")

	forged, err := NewAuthenticator("other-secret").Issue(game.Identity{UserID: 1, Role: game.RoleOperator}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	expectError(t, doRequest(t, env.ts, http.MethodPost, "/api/games", forged, nil), http.StatusUnauthorized, "unauthenticated")

	badRole := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "3", "role": "admin"})
	raw, err := badRole.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	expectError(t, doRequest(t, env.ts, http.MethodPost, "/api/games", raw, nil), http.StatusUnauthorized, "unauthenticated")
}

func TestStateIsPublic(t *testing.T) {
	env := newTestEnv(t)
	gameID, _ := createGame(t, env.ts, env.token(t, 1, game.RoleOperator), nil)

	resp := doRequest(t, env.ts, http.MethodGet, "/api/games/"+gameID+"/state", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if state := decodeBody(t, resp)["state"]; state != "lobby" {
		t.Fatalf("expected lobby, got %v", state)
	}
	expectError(t, doRequest(t, env.ts, http.MethodGet, "/api/games/404/state", "", nil), http.StatusNotFound, "not_found")
	expectError(t, doRequest(t, env.ts, http.MethodGet, "/api/games/"+gameID+"/me", "", nil), http.StatusUnauthorized, "unauthenticated")
}

func TestCreateGameValidation(t *testing.T) {
	env := newTestEnv(t)
	operator := env.token(t, 1, game.RoleOperator)
	player := env.token(t, 2, game.RolePlayer)

	expectError(t, doRequest(t, env.ts, http.MethodPost, "/api/games", player, nil), http.StatusForbidden, "forbidden")
	expectError(t, doRequest(t, env.ts, http.MethodPost, "/api/games", operator, map[string]int{"total_rounds": 51}), http.StatusBadRequest, "invalid_input")
	expectError(t, doRequest(t, env.ts, http.MethodPost, "/api/games", operator, map[string]int{"round_duration_seconds": 30}), http.StatusBadRequest, "invalid_input")

	_, rounds := createGame(t, env.ts, operator, nil)
	if len(rounds) != 5 {
		t.Fatalf("expected default 5 rounds, got %d", len(rounds))
	}
}

func TestGameLifecycleEndpoints(t *testing.T) {
	env := newTestEnv(t)
	operator := env.token(t, 1, game.RoleOperator)
	player := env.token(t, 2, game.RolePlayer)
	gameID, _ := createGame(t, env.ts, operator, map[string]int{"total_rounds": 2, "round_duration_seconds": 60})
	base := "/api/games/" + gameID

	state := decodeBody(t, doRequest(t, env.ts, http.MethodGet, base+"/state", player, nil))
	if state["state"] != "lobby" {
		t.Fatalf("expected lobby, got %v", state["state"])
	}

	expectError(t, doRequest(t, env.ts, http.MethodPost, base+"/start", player, nil), http.StatusForbidden, "forbidden")
	round := startGame(t, env.ts, operator, gameID)
	if round["round_number"].(float64) != 1 || round["state"] != "active" {
		t.Fatalf("unexpected round %v", round)
	}
	expectError(t, doRequest(t, env.ts, http.MethodPost, base+"/start", operator, nil), http.StatusConflict, "already_started")

	resp := doRequest(t, env.ts, http.MethodPost, base+"/rounds/next", operator, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	second := decodeBody(t, resp)["round"].(map[string]any)
	if second["round_number"].(float64) != 2 {
		t.Fatalf("expected round 2, got %v", second["round_number"])
	}
	expectError(t, doRequest(t, env.ts, http.MethodPost, base+"/rounds/next", operator, nil), http.StatusConflict, "no_more_rounds")

	secondID := formatID(second["id"])
	for i := 0; i < 2; i++ {
		resp = doRequest(t, env.ts, http.MethodPost, base+"/rounds/"+secondID+"/end", operator, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("close attempt %d: expected status %d, got %d", i, http.StatusOK, resp.StatusCode)
		}
	}
	state = decodeBody(t, doRequest(t, env.ts, http.MethodGet, base+"/state", player, nil))
	if _, ok := state["round_number"]; ok {
		t.Fatalf("expected no active round, got %v", state)
	}

	resp = doRequest(t, env.ts, http.MethodPost, base+"/end", operator, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	expectError(t, doRequest(t, env.ts, http.MethodPost, base+"/end", operator, nil), http.StatusConflict, "invalid_transition")
	expectError(t, doRequest(t, env.ts, http.MethodGet, "/api/games/999/state", operator, nil), http.StatusNotFound, "not_found")
}

func TestTariffEndpoints(t *testing.T) {
	env := newTestEnv(t)
	operator := env.token(t, 1, game.RoleOperator)
	gameID, _ := createGame(t, env.ts, operator, map[string]int{"total_rounds": 2, "round_duration_seconds": 60})
	base := "/api/games/" + gameID

	economy := decodeBody(t, doRequest(t, env.ts, http.MethodGet, base+"/economy", operator, nil))
	produces := map[string]string{}
	for _, row := range economy["production"].([]any) {
		entry := row.(map[string]any)
		produces[entry["country"].(string)] = entry["product"].(string)
	}

	var player, country, product string
	for user := uint(10); user < 15; user++ {
		token := env.token(t, user, game.RolePlayer)
		code := assignCountry(t, env.ts, token, gameID)
		if p, ok := produces[code]; ok && player == "" {
			player, country, product = token, code, p
		}
	}
	if player == "" {
		t.Fatalf("expected at least one producing country")
	}
	target := "USA"
	if country == "USA" {
		target = "CHN"
	}

	round := startGame(t, env.ts, operator, gameID)
	tariffs := base + "/rounds/" + formatID(round["id"]) + "/tariffs"
	item := func(productCode, to string, rate any) map[string]any {
		return map[string]any{"items": []map[string]any{{"product_code": productCode, "to_country_code": to, "rate_percent": rate}}}
	}

	resp := doRequest(t, env.ts, http.MethodPost, tariffs, player, item(product, target, 25))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if updated := decodeBody(t, resp)["updated"].(float64); updated != 1 {
		t.Fatalf("expected 1 update, got %v", updated)
	}
	expectError(t, doRequest(t, env.ts, http.MethodPost, tariffs, player, item(product, country, 10)), http.StatusForbidden, "self_tariff_rejected")
	expectError(t, doRequest(t, env.ts, http.MethodPost, tariffs, player, item(product, target, 101)), http.StatusBadRequest, "rate_out_of_range")
	expectError(t, doRequest(t, env.ts, http.MethodPost, tariffs, player, item(product, "ZZZ", 5)), http.StatusBadRequest, "unknown_country")
	expectError(t, doRequest(t, env.ts, http.MethodPost, tariffs, player, map[string]any{"items": []any{}}), http.StatusBadRequest, "invalid_input")
	expectError(t, doRequest(t, env.ts, http.MethodPost, tariffs, env.token(t, 99, game.RolePlayer), item(product, target, 5)), http.StatusForbidden, "not_assigned")

	expectError(t, doRequest(t, env.ts, http.MethodGet, base+"/tariff-changes?round=1", player, nil), http.StatusForbidden, "forbidden")
	changes := decodeBody(t, doRequest(t, env.ts, http.MethodGet, base+"/tariff-changes?round=1", operator, nil))["changes"].([]any)
	if len(changes) != 1 {
		t.Fatalf("expected one change, got %v", changes)
	}
	change := changes[0].(map[string]any)
	if change["from_country"] != country || change["to_country"] != target || change["current"].(float64) != 25 || change["previous"].(float64) != 0 {
		t.Fatalf("unexpected change %v", change)
	}
	expectError(t, doRequest(t, env.ts, http.MethodGet, base+"/tariff-changes", operator, nil), http.StatusBadRequest, "invalid_input")

	resp = doRequest(t, env.ts, http.MethodGet, base+"/tariff-matrix?round=1&product="+product, operator, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	matrix := decodeBody(t, resp)
	if len(matrix["countries"].([]any)) != 5 {
		t.Fatalf("unexpected matrix %v", matrix)
	}

	resp = doRequest(t, env.ts, http.MethodGet, base+"/dashboard", operator, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if tariffs := decodeBody(t, resp)["tariffs"].([]any); len(tariffs) != 1 {
		t.Fatalf("expected one stored tariff, got %d", len(tariffs))
	}

	resp = doRequest(t, env.ts, http.MethodPost, base+"/end", operator, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	expectError(t, doRequest(t, env.ts, http.MethodPost, tariffs, player, item(product, target, 30)), http.StatusConflict, "game_ended")
}

func TestChatEndpoints(t *testing.T) {
	env := newTestEnv(t)
	operator := env.token(t, 1, game.RoleOperator)
	player := env.token(t, 2, game.RolePlayer)
	gameID, _ := createGame(t, env.ts, operator, nil)
	base := "/api/games/" + gameID
	code := assignCountry(t, env.ts, player, gameID)

	me := decodeBody(t, doRequest(t, env.ts, http.MethodGet, base+"/me", player, nil))
	if me["country"].(map[string]any)["code"] != code {
		t.Fatalf("expected country %s, got %v", code, me["country"])
	}

	expectError(t, doRequest(t, env.ts, http.MethodPost, base+"/chat", player, map[string]string{"content": ""}), http.StatusBadRequest, "invalid_input")
	expectError(t, doRequest(t, env.ts, http.MethodPost, base+"/chat", player, map[string]string{"content": "hi", "to_country": "XYZ"}), http.StatusBadRequest, "unknown_country")

	resp := doRequest(t, env.ts, http.MethodPost, base+"/chat", player, map[string]string{"content": "deal?", "to_country": "JPN"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, resp.StatusCode)
	}
	posted := decodeBody(t, resp)
	if posted["sender_country"] != code || posted["to_country"] != "JPN" {
		t.Fatalf("unexpected message %v", posted)
	}

	listed := decodeBody(t, doRequest(t, env.ts, http.MethodGet, base+"/chat", player, nil))["messages"].([]any)
	if len(listed) != 1 {
		t.Fatalf("expected one message, got %d", len(listed))
	}
	expectError(t, doRequest(t, env.ts, http.MethodGet, base+"/chat?since=yesterday", player, nil), http.StatusBadRequest, "invalid_input")
}

func formatID(value any) string {
	return strconv.Itoa(int(value.(float64)))
}
