package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "user",
			Action:       "register",
			Method:       "POST",
			PathTemplate: "/user/register",
			Fields: []Field{
				{Name: "firstName", Aliases: []string{"name"}, Prompt: "first name", Type: FieldString, Required: true},
				{Name: "emailId", Aliases: []string{"email"}, Prompt: "email", Type: FieldString, Required: true},
				{Name: "password", Prompt: "password", Type: FieldString, Required: true},
				{Name: "lastName", Prompt: "last name", Type: FieldString},
				{Name: "age", Prompt: "age", Type: FieldInt},
			},
		},
		{
			Service:      "user",
			Action:       "login",
			Method:       "POST",
			PathTemplate: "/user/login",
			Fields: []Field{
				{Name: "emailId", Aliases: []string{"email"}, Prompt: "email", Type: FieldString, Required: true},
				{Name: "password", Prompt: "password", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "user",
			Action:       "logout",
			Method:       "POST",
			PathTemplate: "/user/logout",
			RequiresAuth: true,
		},
		{
			Service:      "user",
			Action:       "check",
			Method:       "GET",
			PathTemplate: "/user/check",
			RequiresAuth: true,
		},
		{
			Service:      "user",
			Action:       "profile",
			Method:       "GET",
			PathTemplate: "/user/getProfile",
			RequiresAuth: true,
		},
		{
			Service:      "user",
			Action:       "show",
			Method:       "GET",
			PathTemplate: "/user/getProfileById/:id",
			Fields: []Field{
				{Name: "id", Prompt: "user id", Type: FieldInt64, Required: true},
			},
		},
		{
			Service:      "user",
			Action:       "update",
			Method:       "PUT",
			PathTemplate: "/user/update/:id",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "id", Prompt: "user id", Type: FieldInt64, Required: true},
				{Name: "firstName", Prompt: "first name", Type: FieldString},
				{Name: "lastName", Prompt: "last name", Type: FieldString},
				{Name: "age", Prompt: "age", Type: FieldInt},
				{Name: "bio", Prompt: "bio", Type: FieldString},
				{Name: "github", Prompt: "github", Type: FieldString},
				{Name: "location", Prompt: "location", Type: FieldString},
			},
		},
		{
			Service:      "problem",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/problem/getAllProblem",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "page", Prompt: "page", Type: FieldInt, Query: true},
				{Name: "limit", Prompt: "limit", Type: FieldInt, Query: true},
			},
		},
		{
			Service:      "problem",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/problem/problemById/:id",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "id", Prompt: "problem id", Type: FieldInt64, Required: true},
			},
		},
		{
			Service:      "problem",
			Action:       "create",
			Method:       "POST",
			PathTemplate: "/problem/create",
			RequiresAuth: true,
			Usage:        "problem create file=./problem.json",
			Fields: []Field{
				{Name: "file", Prompt: "problem json file", Type: FieldFile, Required: true},
			},
		},
		{
			Service:      "problem",
			Action:       "delete",
			Method:       "DELETE",
			PathTemplate: "/problem/delete/:id",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "id", Prompt: "problem id", Type: FieldInt64, Required: true},
			},
		},
		{
			Service:      "problem",
			Action:       "solved",
			Method:       "GET",
			PathTemplate: "/problem/problemSolvedByUser",
			RequiresAuth: true,
		},
		{
			Service:      "problem",
			Action:       "submissions",
			Method:       "GET",
			PathTemplate: "/problem/submittedProblem/:pid",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "pid", Aliases: []string{"id"}, Prompt: "problem id", Type: FieldInt64, Required: true},
			},
		},
		{
			Service:      "submission",
			Action:       "run",
			Method:       "POST",
			PathTemplate: "/submission/run/:id",
			RequiresAuth: true,
			Usage:        "submission run id=1 language=cpp file=./main.cpp",
			Fields: []Field{
				{Name: "id", Aliases: []string{"problem"}, Prompt: "problem id", Type: FieldInt64, Required: true},
				{Name: "language", Aliases: []string{"lang"}, Prompt: "language", Type: FieldString, Required: true},
				{Name: "code", Prompt: "code", Type: FieldString, Required: true},
				{Name: "file", Prompt: "source file", Type: FieldFile},
			},
		},
		{
			Service:      "submission",
			Action:       "submit",
			Method:       "POST",
			PathTemplate: "/submission/submit/:id",
			RequiresAuth: true,
			Usage:        "submission submit id=1 language=cpp file=./main.cpp",
			Fields: []Field{
				{Name: "id", Aliases: []string{"problem"}, Prompt: "problem id", Type: FieldInt64, Required: true},
				{Name: "language", Aliases: []string{"lang"}, Prompt: "language", Type: FieldString, Required: true},
				{Name: "code", Prompt: "code", Type: FieldString, Required: true},
				{Name: "file", Prompt: "source file", Type: FieldFile},
				{Name: "idempotency_key", Aliases: []string{"key"}, Prompt: "idempotency key", Type: FieldString},
			},
		},
		{
			Service:      "submission",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/submission/:id",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "id", Prompt: "submission id", Type: FieldInt64, Required: true},
			},
		},
		{
			Service:      "ai",
			Action:       "chat",
			Method:       "POST",
			PathTemplate: "/ai/chat",
			RequiresAuth: true,
			Usage:        "ai chat message=\"give me a hint\" title=\"Two Sum\"",
			Fields: []Field{
				{Name: "message", Prompt: "message", Type: FieldString, Required: true},
				{Name: "title", Prompt: "problem title", Type: FieldString},
				{Name: "description", Prompt: "problem description", Type: FieldString},
			},
		},
		{
			Service:      "discuss",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/discuss/",
			Fields: []Field{
				{Name: "page", Prompt: "page", Type: FieldInt, Query: true},
				{Name: "limit", Prompt: "limit", Type: FieldInt, Query: true},
			},
		},
		{
			Service:      "discuss",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/discuss/:id",
			Fields: []Field{
				{Name: "id", Prompt: "post id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "discuss",
			Action:       "create",
			Method:       "POST",
			PathTemplate: "/discuss/create",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "title", Prompt: "title", Type: FieldString, Required: true},
				{Name: "content", Prompt: "content", Type: FieldString, Required: true},
				{Name: "tags", Prompt: "tags (comma-separated)", Type: FieldStringList},
			},
		},
		{
			Service:      "discuss",
			Action:       "comment",
			Method:       "POST",
			PathTemplate: "/discuss/:id/comments",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "id", Prompt: "post id", Type: FieldString, Required: true},
				{Name: "text", Prompt: "text", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "sheet",
			Action:       "list",
			Method:       "GET",
			PathTemplate: "/resource/",
			RequiresAuth: true,
		},
		{
			Service:      "sheet",
			Action:       "get",
			Method:       "GET",
			PathTemplate: "/resource/:id",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "id", Prompt: "sheet id", Type: FieldInt64, Required: true},
			},
		},
		{
			Service:      "sheet",
			Action:       "create",
			Method:       "POST",
			PathTemplate: "/resource/createSheet",
			RequiresAuth: true,
			Usage:        "sheet create title=\"Arrays 101\" problems=1,2,3 isPublic=true",
			Fields: []Field{
				{Name: "title", Prompt: "title", Type: FieldString, Required: true},
				{Name: "problems", Prompt: "problem ids (comma-separated)", Type: FieldInt64List, Required: true},
				{Name: "description", Prompt: "description", Type: FieldString},
				{Name: "isPublic", Aliases: []string{"public"}, Prompt: "public", Type: FieldBool},
				{Name: "difficulty", Prompt: "difficulty", Type: FieldString},
			},
		},
		{
			Service:      "video",
			Action:       "create",
			Method:       "GET",
			PathTemplate: "/video/create/:problemId",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "problemId", Aliases: []string{"id"}, Prompt: "problem id", Type: FieldInt64, Required: true},
			},
		},
		{
			Service:      "video",
			Action:       "save",
			Method:       "POST",
			PathTemplate: "/video/save",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "problemId", Aliases: []string{"id"}, Prompt: "problem id", Type: FieldInt64, Required: true},
				{Name: "objectKey", Aliases: []string{"key"}, Prompt: "object key", Type: FieldString, Required: true},
				{Name: "thumbnailKey", Prompt: "thumbnail key", Type: FieldString},
				{Name: "duration", Prompt: "duration seconds", Type: FieldInt},
			},
		},
		{
			Service:      "video",
			Action:       "delete",
			Method:       "DELETE",
			PathTemplate: "/video/delete/:problemId",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "problemId", Aliases: []string{"id"}, Prompt: "problem id", Type: FieldInt64, Required: true},
			},
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		key := fmt.Sprintf("%s %s", cmd.Service, cmd.Action)
		result[key] = cmd
	}
	return result
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	path, err := buildPath(cmd, params)
	if err != nil {
		return RequestSpec{}, err
	}

	headers := map[string]string{}
	if cmd.Service == "submission" && cmd.Action == "submit" {
		headers["Idempotency-Key"] = params.Get("idempotency_key")
	}

	var body []byte
	if cmd.Method != "GET" && cmd.Method != "DELETE" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		switch p := payload.(type) {
		case nil:
		case json.RawMessage:
			body = p
		default:
			body, err = json.Marshal(p)
			if err != nil {
				return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
			}
		}
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: headers,
		Body:    body,
	}, nil
}

func isPathField(template, name string) bool {
	placeholder := ":" + name
	idx := strings.Index(template, placeholder)
	if idx < 0 {
		return false
	}
	rest := template[idx+len(placeholder):]
	return rest == "" || rest[0] == '/'
}

func buildPath(cmd Command, params Params) (string, error) {
	path := cmd.PathTemplate
	query := url.Values{}
	for _, field := range cmd.Fields {
		value := params.Get(field.Name)
		switch {
		case isPathField(cmd.PathTemplate, field.Name):
			if value == "" {
				return "", fmt.Errorf("missing path parameter: %s", field.Name)
			}
			path = strings.Replace(path, ":"+field.Name, url.PathEscape(value), 1)
		case field.Query && value != "":
			query.Set(field.Name, value)
		}
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return path, nil
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	switch cmd.Service + " " + cmd.Action {
	case "problem create":
		data, err := ReadFile(params.Get("file"))
		if err != nil {
			return nil, err
		}
		return ParseJSON(data)
	case "submission run", "submission submit":
		code, err := ReadFileOr(params.Get("code"), params.Get("file"))
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(code) == "" {
			return nil, fmt.Errorf("code is required")
		}
		return map[string]string{
			"code":     code,
			"language": params.Get("language"),
		}, nil
	case "ai chat":
		payload := map[string]interface{}{
			"messages": []map[string]interface{}{
				{"role": "user", "parts": []map[string]string{{"text": params.Get("message")}}},
			},
		}
		if title := params.Get("title"); title != "" {
			payload["title"] = title
		}
		if description := params.Get("description"); description != "" {
			payload["description"] = description
		}
		return payload, nil
	}
	return fieldPayload(cmd, params)
}

// fieldPayload maps every non-path, non-query field that was given to a JSON member.
func fieldPayload(cmd Command, params Params) (interface{}, error) {
	payload := map[string]interface{}{}
	for _, field := range cmd.Fields {
		if field.Query || field.Type == FieldFile || isPathField(cmd.PathTemplate, field.Name) {
			continue
		}
		if field.Name == "idempotency_key" {
			continue
		}
		raw := params.Get(field.Name)
		if raw == "" {
			continue
		}
		value, err := convertField(field, raw)
		if err != nil {
			return nil, err
		}
		payload[field.Name] = value
	}
	if len(payload) == 0 {
		return nil, nil
	}
	return payload, nil
}

func convertField(field Field, raw string) (interface{}, error) {
	switch field.Type {
	case FieldInt:
		n, err := ParseInt(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", field.Name, err)
		}
		return n, nil
	case FieldInt64:
		n, err := ParseInt64(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", field.Name, err)
		}
		return n, nil
	case FieldStringList:
		return ParseStringList(raw), nil
	case FieldInt64List:
		return ParseInt64List(raw)
	case FieldBool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", field.Name, err)
		}
		return b, nil
	case FieldJSON:
		return ParseJSON(raw)
	default:
		return raw, nil
	}
}
