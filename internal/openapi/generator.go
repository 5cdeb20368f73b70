package openapi

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"

	"github.com/skywatch-labs/skywatch/internal/model"
)

// AllowedRolesExtension lists the roles admitted on a protected operation.
const AllowedRolesExtension = "x-allowed-roles"

// Route describes one mounted endpoint. The server builds its router and
// this document from the same slice of Routes.
type Route struct {
	Method  string
	Pattern string
	Summary string
	Tag     string
	// Roles is nil for public routes.
	Roles []model.Role
	// Request and Response are component schema names. A "[]" prefix means
	// an array of that schema; an empty string means no body.
	Request  string
	Response string
	// Envelope wraps the response in {message, data}.
	Envelope bool
	Status   int
}

// Info is the document metadata.
type Info struct {
	Title   string
	Version string
	BaseURL string
}

var pathParam = regexp.MustCompile(`\{([^}]+)\}`)

// Generate builds an OpenAPI 3.1 document for routes.
func Generate(info Info, routes []Route) (*openapi3.T, error) {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       info.Title,
			Description: "Weather observation API. Protected operations list their admitted roles under " + AllowedRolesExtension + ".",
			Version:     info.Version,
		},
	}
	if info.BaseURL != "" {
		doc.Servers = openapi3.Servers{{URL: info.BaseURL}}
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{
		"bearerAuth": &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{
				Type:         "http",
				Scheme:       "bearer",
				BearerFormat: "JWT",
			},
		},
	}
	doc.Components = &components
	if err := addSchemas(components.Schemas); err != nil {
		return nil, err
	}

	doc.Paths = openapi3.NewPaths()
	for _, rt := range routes {
		item := doc.Paths.Value(rt.Pattern)
		if item == nil {
			item = &openapi3.PathItem{}
			doc.Paths.Set(rt.Pattern, item)
		}
		item.SetOperation(rt.Method, operation(rt))
	}
	return doc, nil
}

func operation(rt Route) *openapi3.Operation {
	op := &openapi3.Operation{
		Tags:        []string{rt.Tag},
		Summary:     rt.Summary,
		OperationID: operationID(rt),
	}

	for _, m := range pathParam.FindAllStringSubmatch(rt.Pattern, -1) {
		op.Parameters = append(op.Parameters, &openapi3.ParameterRef{
			Value: openapi3.NewPathParameter(m[1]).WithSchema(openapi3.NewStringSchema()),
		})
	}

	if rt.Request != "" {
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithRequired(true).
				WithContent(openapi3.NewContentWithJSONSchemaRef(schemaRef(rt.Request))),
		}
	}

	var success *openapi3.SchemaRef
	if rt.Response != "" {
		success = schemaRef(rt.Response)
	}
	if rt.Envelope {
		success = envelope(success)
	}
	status := rt.Status
	if status == 0 {
		status = http.StatusOK
	}

	codes := []int{http.StatusBadRequest, http.StatusInternalServerError}
	if rt.Roles != nil {
		codes = append(codes, http.StatusUnauthorized, http.StatusForbidden)
		op.Security = &openapi3.SecurityRequirements{{"bearerAuth": {}}}
		op.Extensions = map[string]interface{}{AllowedRolesExtension: roleNames(rt.Roles)}
	} else {
		op.Security = &openapi3.SecurityRequirements{}
	}
	if strings.Contains(rt.Pattern, "{") {
		codes = append(codes, http.StatusNotFound)
	}
	op.Responses = newResponses(status, success, codes)
	return op
}

func newResponses(status int, schema *openapi3.SchemaRef, errorCodes []int) *openapi3.Responses {
	responses := openapi3.NewResponses()

	desc := http.StatusText(status)
	resp := &openapi3.Response{Description: &desc}
	if schema != nil {
		resp.Content = openapi3.NewContentWithJSONSchemaRef(schema)
	}
	responses.Set(fmt.Sprint(status), &openapi3.ResponseRef{Value: resp})

	errorRef := openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil)
	sort.Ints(errorCodes)
	for _, code := range errorCodes {
		desc := http.StatusText(code)
		responses.Set(fmt.Sprint(code), &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}
	return responses
}

func schemaRef(name string) *openapi3.SchemaRef {
	if elem, ok := strings.CutPrefix(name, "[]"); ok {
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: openapi3.NewSchemaRef("#/components/schemas/"+elem, nil),
			},
		}
	}
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func envelope(data *openapi3.SchemaRef) *openapi3.SchemaRef {
	props := openapi3.Schemas{
		"message": &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
	}
	if data != nil {
		props["data"] = data
	}
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:       &openapi3.Types{"object"},
			Properties: props,
			Required:   []string{"message"},
		},
	}
}

func operationID(rt Route) string {
	p := pathParam.ReplaceAllString(rt.Pattern, "by_$1")
	p = strings.Trim(strings.ReplaceAll(p, "/", "_"), "_")
	return strings.ToLower(rt.Method) + "_" + p
}

func roleNames(roles []model.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	sort.Strings(out)
	return out
}

// addSchemas registers the component schemas. Model types are reflected
// with openapi3gen so their JSON tags are the single source of field names.
func addSchemas(schemas openapi3.Schemas) error {
	reflected := map[string]interface{}{
		"Weather":           &model.Weather{},
		"WeatherProjection": &model.WeatherProjection{},
		"PublicUser":        &model.PublicUser{},
	}
	for name, v := range reflected {
		ref, err := openapi3gen.NewSchemaRefForValue(v, nil)
		if err != nil {
			return fmt.Errorf("reflect %s schema: %w", name, err)
		}
		schemas[name] = ref
	}

	weatherRequired := make([]string, 0, len(model.WeatherFields))
	for name := range model.WeatherFields {
		weatherRequired = append(weatherRequired, name)
	}
	sort.Strings(weatherRequired)

	schemas["WeatherInput"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:       &openapi3.Types{"object"},
			Properties: schemas["Weather"].Value.Properties,
			Required:   weatherRequired,
		},
	}
	schemas["WeatherPatch"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:        &openapi3.Types{"object"},
			Description: "Any subset of the Weather fields except _id.",
			Properties:  schemas["Weather"].Value.Properties,
			MinProps:    1,
		},
	}
	schemas["WeatherIDs"] = objectSchema(openapi3.Schemas{
		"_id": &openapi3.SchemaRef{Value: openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())},
	}, "_id")

	schemas["LoginRequest"] = objectSchema(openapi3.Schemas{
		"username": &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
		"password": &openapi3.SchemaRef{Value: openapi3.NewStringSchema().WithFormat("password")},
	}, "username", "password")
	schemas["LoginResponse"] = objectSchema(openapi3.Schemas{
		"token":      &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
		"token_type": &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
		"expires_in": &openapi3.SchemaRef{Value: openapi3.NewIntegerSchema()},
		"user":       openapi3.NewSchemaRef("#/components/schemas/PublicUser", nil),
	}, "token", "token_type", "expires_in", "user")

	roleEnum := make([]interface{}, len(model.AllRoles))
	for i, r := range model.AllRoles {
		roleEnum[i] = string(r)
	}
	schemas["RegisterRequest"] = objectSchema(openapi3.Schemas{
		"username": &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
		"password": &openapi3.SchemaRef{Value: openapi3.NewStringSchema().WithFormat("password")},
		"role":     &openapi3.SchemaRef{Value: openapi3.NewStringSchema().WithEnum(roleEnum...)},
	}, "username", "password", "role")
	schemas["Identity"] = objectSchema(openapi3.Schemas{
		"id":   &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
		"role": &openapi3.SchemaRef{Value: openapi3.NewStringSchema().WithEnum(roleEnum...)},
	}, "id", "role")
	schemas["Health"] = objectSchema(openapi3.Schemas{
		"status": &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
	}, "status")

	schemas["ErrorResponse"] = objectSchema(openapi3.Schemas{
		"error": objectSchema(openapi3.Schemas{
			"code":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
			"message": &openapi3.SchemaRef{Value: openapi3.NewStringSchema()},
			"context": &openapi3.SchemaRef{Value: openapi3.NewObjectSchema()},
		}, "code", "message"),
	}, "error")
	return nil
}

func objectSchema(props openapi3.Schemas, required ...string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:       &openapi3.Types{"object"},
			Properties: props,
			Required:   required,
		},
	}
}
