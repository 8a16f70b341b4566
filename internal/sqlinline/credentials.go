package sqlinline

const QSelectProviderCredential = `--sql 8a8e0d52-7f5d-4f21-8b7d-f7d4b821eed7
select api_key, base_url, model
from provider_credentials
where provider = $1::text;
`

const QRotateProviderCredential = `--sql 6d4f5660-0f7c-4f73-a1f3-9ab6d5e6c7a3
insert into provider_credentials (provider, api_key, base_url, model, rotated_by, rotated_at)
values ($1::text, $2::text, $3::text, $4::text, $5::text, now())
on conflict (provider) do update set
    api_key = excluded.api_key,
    base_url = case when excluded.base_url <> '' then excluded.base_url else provider_credentials.base_url end,
    model = case when excluded.model <> '' then excluded.model else provider_credentials.model end,
    rotated_by = excluded.rotated_by,
    rotated_at = now();
`
