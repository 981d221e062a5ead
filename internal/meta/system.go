package meta

import "strings"

// System metadata entity type ids. The metadata model is self-hosted: these
// entity types describe entity types, attributes, packages and the other
// system resources, and their records are persisted through the normal
// repository pipeline.
const (
	EntityTypeMeta      = "sys_md_EntityType"
	AttributeMeta       = "sys_md_Attribute"
	PackageMeta         = "sys_md_Package"
	TagMeta             = "sys_md_Tag"
	LanguageMeta        = "sys_Language"
	L10nStringMeta      = "sys_L10nString"
	FileMeta            = "sys_FileMeta"
	DecoratorConfigMeta = "sys_dec_DecoratorConfiguration"
)

// SystemPackageID is the namespace of the system metadata
const SystemPackageID = "sys"

// UploadPackageID is the namespace writable by all users
const UploadPackageID = "upload"

// FileMetaURL is the attribute holding a file's download URL, included in
// default reference expansion of FILE attributes.
const FileMetaURL = "url"

// IsSystem reports whether an entity type id belongs to the system namespace
func IsSystem(entityTypeID string) bool {
	return strings.HasPrefix(entityTypeID, SystemPackageID+"_")
}

// SystemPackages returns the packages created at bootstrap
func SystemPackages() []*Package {
	sys := &Package{ID: SystemPackageID, Label: "System"}
	md := &Package{ID: "sys_md", Label: "Metadata", Parent: sys}
	upload := &Package{ID: UploadPackageID, Label: "Upload"}
	return []*Package{sys, md, upload}
}

// SystemEntityTypes returns the root schemas, phase 1 of the two-phase
// bootstrap: the entity-type-describing-entity-type comes first and refers
// to itself, so callers must register these relaxed before any validation
// runs against them.
func SystemEntityTypes() []*EntityType {
	packages := SystemPackages()
	mdPkg := packages[1]
	sysPkg := packages[0]

	entityType := NewEntityType(EntityTypeMeta)
	entityType.Label = "Entity type"
	entityType.Package = mdPkg
	entityType.Backend = "memory"

	attribute := NewEntityType(AttributeMeta)
	attribute.Label = "Attribute"
	attribute.Package = mdPkg
	attribute.Backend = "memory"

	pkg := NewEntityType(PackageMeta)
	pkg.Label = "Package"
	pkg.Package = mdPkg
	pkg.Backend = "memory"

	tag := NewEntityType(TagMeta)
	tag.Label = "Tag"
	tag.Package = mdPkg
	tag.Backend = "memory"

	// entity type registry, self-referencing via extends and attributes
	entityType.AddAttribute(idAttr("id")).
		AddAttribute(required("label", TypeString)).
		AddAttribute(xref("package", pkg)).
		AddAttribute(NewAttribute("backend", TypeString)).
		AddAttribute(NewAttribute("abstract", TypeBool)).
		AddAttribute(xref("extends", entityType)).
		AddAttribute(NewAttribute("idAttribute", TypeString)).
		AddAttribute(NewAttribute("labelAttribute", TypeString)).
		AddAttribute(mref("attributes", attribute)).
		AddAttribute(mref("tags", tag))
	entityType.IDAttributeName = "id"
	entityType.LabelAttributeName = "label"

	attribute.AddAttribute(idAttr("id")).
		AddAttribute(required("name", TypeString)).
		AddAttribute(xref("entity", entityType)).
		AddAttribute(required("type", TypeString)).
		AddAttribute(NewAttribute("nillable", TypeBool)).
		AddAttribute(NewAttribute("unique", TypeBool)).
		AddAttribute(NewAttribute("readonly", TypeBool)).
		AddAttribute(NewAttribute("auto", TypeBool)).
		AddAttribute(NewAttribute("visible", TypeBool)).
		AddAttribute(NewAttribute("aggregatable", TypeBool)).
		AddAttribute(NewAttribute("defaultValue", TypeText)).
		AddAttribute(NewAttribute("enumOptions", TypeText)).
		AddAttribute(xref("refEntity", entityType)).
		AddAttribute(NewAttribute("mappedBy", TypeString)).
		AddAttribute(NewAttribute("orderBy", TypeString)).
		AddAttribute(xref("parent", attribute)).
		AddAttribute(NewAttribute("expression", TypeScript)).
		AddAttribute(NewAttribute("nullableExpression", TypeScript)).
		AddAttribute(NewAttribute("visibleExpression", TypeScript)).
		AddAttribute(NewAttribute("validationExpression", TypeScript))
	attribute.IDAttributeName = "id"
	attribute.LabelAttributeName = "name"

	pkg.AddAttribute(idAttr("id")).
		AddAttribute(required("label", TypeString)).
		AddAttribute(xref("parent", pkg))
	pkg.IDAttributeName = "id"
	pkg.LabelAttributeName = "label"

	tag.AddAttribute(idAttr("id")).
		AddAttribute(required("label", TypeString)).
		AddAttribute(NewAttribute("relationIri", TypeHyperlink)).
		AddAttribute(NewAttribute("objectIri", TypeHyperlink))
	tag.IDAttributeName = "id"
	tag.LabelAttributeName = "label"

	language := NewEntityType(LanguageMeta)
	language.Label = "Language"
	language.Package = sysPkg
	language.Backend = "memory"
	language.AddAttribute(idAttr("code")).
		AddAttribute(required("name", TypeString)).
		AddAttribute(NewAttribute("active", TypeBool))
	language.IDAttributeName = "code"
	language.LabelAttributeName = "name"

	l10n := NewEntityType(L10nStringMeta)
	l10n.Label = "Localization"
	l10n.Package = sysPkg
	l10n.Backend = "memory"
	l10n.AddAttribute(idAttr("id")).
		AddAttribute(required("msgid", TypeString)).
		AddAttribute(NewAttribute("namespace", TypeString)).
		AddAttribute(NewAttribute("en", TypeText))
	l10n.IDAttributeName = "id"
	l10n.LabelAttributeName = "msgid"

	fileMeta := NewEntityType(FileMeta)
	fileMeta.Label = "File metadata"
	fileMeta.Package = sysPkg
	fileMeta.Backend = "memory"
	fileMeta.AddAttribute(idAttr("id")).
		AddAttribute(required("filename", TypeString)).
		AddAttribute(NewAttribute("contentType", TypeString)).
		AddAttribute(NewAttribute("size", TypeLong)).
		AddAttribute(NewAttribute(FileMetaURL, TypeHyperlink))
	fileMeta.IDAttributeName = "id"
	fileMeta.LabelAttributeName = "filename"

	decoratorConfig := NewEntityType(DecoratorConfigMeta)
	decoratorConfig.Label = "Decorator configuration"
	decoratorConfig.Package = sysPkg
	decoratorConfig.Backend = "memory"
	decoratorConfig.AddAttribute(idAttr("id")).
		AddAttribute(xref("entityType", entityType)).
		AddAttribute(NewAttribute("parameters", TypeText))
	decoratorConfig.IDAttributeName = "id"

	return []*EntityType{entityType, attribute, pkg, tag, language, l10n, fileMeta, decoratorConfig}
}

func idAttr(name string) *Attribute {
	a := NewAttribute(name, TypeString)
	a.Nillable = false
	a.Unique = true
	a.ReadOnly = true
	return a
}

func required(name string, typ AttributeType) *Attribute {
	a := NewAttribute(name, typ)
	a.Nillable = false
	return a
}

func xref(name string, ref *EntityType) *Attribute {
	a := NewAttribute(name, TypeXref)
	a.RefEntity = ref
	return a
}

func mref(name string, ref *EntityType) *Attribute {
	a := NewAttribute(name, TypeMref)
	a.RefEntity = ref
	return a
}
