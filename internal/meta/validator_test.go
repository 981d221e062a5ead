package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metagrid-platform/metagrid/internal/query"
)

func validPersonType() *EntityType {
	et := NewEntityType("persons")
	id := NewAttribute("id", TypeString)
	id.Nillable = false
	id.Unique = true
	et.AddAttribute(id).AddAttribute(NewAttribute("name", TypeString))
	et.IDAttributeName = "id"
	return et
}

func TestValidateEntityType_Valid(t *testing.T) {
	v := NewValidator()
	assert.Empty(t, v.ValidateEntityType(validPersonType()))
}

func TestValidateEntityType_MissingIDAttribute(t *testing.T) {
	v := NewValidator()
	et := NewEntityType("persons")
	et.AddAttribute(NewAttribute("name", TypeString))

	msgs := v.ValidateEntityType(et)
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[0], "Entity [persons] is missing required ID attribute")
}

func TestValidateEntityType_AbstractNeedsNoID(t *testing.T) {
	v := NewValidator()
	et := NewEntityType("base")
	et.Abstract = true
	et.AddAttribute(NewAttribute("name", TypeString))

	assert.Empty(t, v.ValidateEntityType(et))
}

func TestValidateEntityType_NillableID(t *testing.T) {
	v := NewValidator()
	et := validPersonType()
	et.Attribute("id").Nillable = true

	msgs := v.ValidateEntityType(et)
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[0], "ID attribute [id] of entity [persons] must not be nillable")
}

func TestValidateEntityType_UnknownLabelAttribute(t *testing.T) {
	v := NewValidator()
	et := validPersonType()
	et.LabelAttributeName = "fullName"

	msgs := v.ValidateEntityType(et)
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[0], "Label attribute [fullName] is not part of entity [persons]")
}

func TestValidateEntityType_ExtendsCycle(t *testing.T) {
	v := NewValidator()
	a := validPersonType()
	b := NewEntityType("students")
	b.Extends = a
	a.Extends = b

	msgs := v.ValidateEntityType(a)
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[0], "extends cycle")
}

func TestValidateEntityType_ParentAttributeCollision(t *testing.T) {
	v := NewValidator()
	parent := validPersonType()
	parent.Abstract = true
	child := NewEntityType("students")
	child.Extends = parent
	child.AddAttribute(NewAttribute("name", TypeString))
	child.IDAttributeName = "id"

	msgs := v.ValidateEntityType(child)
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[0], "Attribute [name] of entity [students] collides with attribute of parent entity [persons]")
}

func TestValidateAttribute_NameCharset(t *testing.T) {
	v := NewValidator()
	attr := NewAttribute("first name", TypeString)

	msgs := v.ValidateAttribute(attr, nil)
	require.NotEmpty(t, msgs)
	assert.Equal(t, "Invalid characters in: [first name] Only letters (a-z, A-Z), digits (0-9), underscores (_) and hashes (#) are allowed.", msgs[0])
}

func TestValidateAttribute_ReferenceNeedsRefEntity(t *testing.T) {
	v := NewValidator()
	attr := NewAttribute("owner", TypeXref)

	msgs := v.ValidateAttribute(attr, nil)
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[0], "missing a referenced entity")
}

func TestValidateAttribute_MappedBy(t *testing.T) {
	v := NewValidator()
	persons := validPersonType()
	orders := NewEntityType("orders")
	orderID := NewAttribute("id", TypeString)
	orderID.Nillable = false
	orderID.Unique = true
	buyer := NewAttribute("buyer", TypeXref)
	buyer.RefEntity = persons
	orders.AddAttribute(orderID).AddAttribute(buyer)
	orders.IDAttributeName = "id"

	inverse := NewAttribute("orders", TypeOneToMany)
	inverse.RefEntity = orders
	inverse.MappedBy = "buyer"
	assert.Empty(t, v.ValidateAttribute(inverse, persons))

	inverse.MappedBy = "nope"
	msgs := v.ValidateAttribute(inverse, persons)
	require.NotEmpty(t, msgs)
	assert.Equal(t, "mappedBy attribute [nope] is not part of entity [orders].", msgs[0])

	inverse.MappedBy = "id"
	msgs = v.ValidateAttribute(inverse, persons)
	require.NotEmpty(t, msgs)
	assert.Equal(t, "Invalid mappedBy attribute [id] data type [STRING].", msgs[0])
}

func TestValidateAttribute_OneToManyRequiresMappedBy(t *testing.T) {
	v := NewValidator()
	attr := NewAttribute("orders", TypeOneToMany)
	attr.RefEntity = validPersonType()

	msgs := v.ValidateAttribute(attr, nil)
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[0], "requires a mappedBy attribute")
}

func TestValidateAttribute_OrderByUnknownAttribute(t *testing.T) {
	v := NewValidator()
	persons := validPersonType()
	attr := NewAttribute("friends", TypeMref)
	attr.RefEntity = persons
	attr.OrderBy = query.NewSort("nickname", query.Ascending)

	msgs := v.ValidateAttribute(attr, validPersonType())
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[0], "Unknown entity [persons] attribute [nickname]")
}

func TestValidateAttribute_EnumOptions(t *testing.T) {
	v := NewValidator()

	empty := NewAttribute("status", TypeEnum)
	msgs := v.ValidateAttribute(empty, nil)
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[0], "requires a non-empty option set")

	stray := NewAttribute("name", TypeString)
	stray.EnumOptions = []string{"a"}
	msgs = v.ValidateAttribute(stray, nil)
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[0], "must not declare enum options")
}

func TestValidateTypeUpdate(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateTypeUpdate(TypeString, TypeString))
	assert.NoError(t, v.ValidateTypeUpdate(TypeString, TypeText))
	assert.NoError(t, v.ValidateTypeUpdate(TypeInt, TypeLong))
	assert.NoError(t, v.ValidateTypeUpdate(TypeMref, TypeCategoricalMref))

	err := v.ValidateTypeUpdate(TypeDate, TypeInt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Attribute data type update from [DATE] to [INT] not allowed, allowed types are [DATE_TIME, STRING, TEXT]")

	// one-to-many has no legal transitions at all
	require.Error(t, v.ValidateTypeUpdate(TypeOneToMany, TypeMref))
}

func defaultValue(s string) *string { return &s }

func TestValidateDefaultValue(t *testing.T) {
	v := NewValidator()

	boolean := NewAttribute("active", TypeBool)
	boolean.DefaultValue = defaultValue("true")
	assert.NoError(t, v.ValidateDefaultValue(boolean))
	boolean.DefaultValue = defaultValue("yes")
	require.Error(t, v.ValidateDefaultValue(boolean))

	number := NewAttribute("count", TypeInt)
	number.DefaultValue = defaultValue("abc")
	err := v.ValidateDefaultValue(number)
	require.Error(t, err)
	assert.Equal(t, `NumberFormatException For input string: "abc"`, err.Error())

	date := NewAttribute("born", TypeDate)
	date.DefaultValue = defaultValue("2001-12-31")
	assert.NoError(t, v.ValidateDefaultValue(date))
	date.DefaultValue = defaultValue("31-12-2001")
	assert.NoError(t, v.ValidateDefaultValue(date))
	date.DefaultValue = defaultValue("12/31/2001")
	require.Error(t, v.ValidateDefaultValue(date))

	email := NewAttribute("contact", TypeEmail)
	email.DefaultValue = defaultValue("user@example.org")
	assert.NoError(t, v.ValidateDefaultValue(email))
	email.DefaultValue = defaultValue("not-an-email")
	require.Error(t, v.ValidateDefaultValue(email))

	enum := NewAttribute("status", TypeEnum)
	enum.EnumOptions = []string{"draft", "published"}
	enum.DefaultValue = defaultValue("draft")
	assert.NoError(t, v.ValidateDefaultValue(enum))
	enum.DefaultValue = defaultValue("archived")
	err = v.ValidateDefaultValue(enum)
	require.Error(t, err)
	assert.Equal(t, "Invalid default value [archived] for enum [status] value must be one of [draft, published]", err.Error())
}

func TestIsValidHyperlink(t *testing.T) {
	assert.True(t, IsValidHyperlink("https://example.org/page"))
	assert.True(t, IsValidHyperlink("example.org"))
	assert.False(t, IsValidHyperlink("not a link"))
}
